package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns events into bytes for external transports.
type Codec interface {
	Name() string
	Marshal(Event) ([]byte, error)
	Unmarshal([]byte, *Event) error
}

// ParseCodec resolves a codec by name ("json" or "cbor").
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("unknown event codec %q", name)
	}
}

// JSON encodes events with encoding/json.
type JSON struct{}

func (JSON) Name() string                       { return "json" }
func (JSON) Marshal(e Event) ([]byte, error)    { return json.Marshal(e) }
func (JSON) Unmarshal(b []byte, e *Event) error { return json.Unmarshal(b, e) }

// cborEnc uses Core Deterministic Encoding so identical events always
// produce identical bytes.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	if cborEnc, err = opts.EncMode(); err != nil {
		panic("events: CBOR encoder initialization failed: " + err.Error())
	}
	if cborDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("events: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR encodes events as deterministic CBOR. Field names follow the json tags.
type CBOR struct{}

func (CBOR) Name() string                       { return "cbor" }
func (CBOR) Marshal(e Event) ([]byte, error)    { return cborEnc.Marshal(e) }
func (CBOR) Unmarshal(b []byte, e *Event) error { return cborDec.Unmarshal(b, e) }
