package priority

// DefaultUrgencyKeywords are words in patient messages that raise the
// activity factor. Matching ignores case and accents.
var DefaultUrgencyKeywords = []string{
	// fr
	"urgent", "urgence", "grave", "insupportable", "aigu", "saigne", "saignement",
	"evanoui", "evanouissement", "respirer", "etouffe", "malaise", "aidez moi",
	"tres mal", "pire",
	// en
	"emergency", "severe", "unbearable", "bleeding", "fainted", "faint",
	"can't breathe", "breathing", "help", "worse", "worst",
}

// DefaultRiskConditions are medical-history terms that raise the history
// factor when found in ticket notes.
var DefaultRiskConditions = []string{
	// fr
	"diabete", "diabetique", "asthme", "asthmatique", "hypertension", "cardiaque",
	"insuffisance renale", "insuffisance cardiaque", "cancer", "chimiotherapie",
	"enceinte", "grossesse", "immunodeprime", "epilepsie", "avc", "bpco",
	"anticoagulant", "chronique", "operation recente", "chirurgie recente",
	// en
	"diabetes", "diabetic", "asthma", "heart disease", "heart failure",
	"kidney failure", "chemotherapy", "pregnant", "pregnancy",
	"immunocompromised", "epilepsy", "stroke", "copd", "chronic", "recent surgery",
}

// stopwords are ignored on both sides of keyword matching.
var stopwords = []string{"a", "au", "de", "des", "du", "la", "le", "les", "un", "une", "the", "of", "an"}
