// Package docs holds the OpenAPI 2.0 document served by gin-swagger. It
// follows the swag output layout; regenerate with
// `swag init -g cmd/clinicq/main.go -o docs` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/assessments": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Assessments"],
                "summary": "Start the urgency intake",
                "operationId": "startAssessment",
                "parameters": [
                    {"type": "string", "description": "Authenticated user id (set upstream)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Anonymous session id", "name": "X-Session-ID", "in": "header"},
                    {"description": "Optional ticket link", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.StartAssessmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "Open conversation already answered", "schema": {"$ref": "#/definitions/services.AssessmentView"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.AssessmentView"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Ticket not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/assessments/{id}": {
            "get": {
                "description": "Returns the conversation with its transcript and either the pending question or the verdict.",
                "produces": ["application/json"],
                "tags": ["Assessments"],
                "summary": "Get a conversation",
                "operationId": "getAssessment",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.AssessmentView"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/assessments/{id}/answers": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Assessments"],
                "summary": "Answer the pending question",
                "operationId": "submitAnswer",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "Structured answer", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/urgency.Answer"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.AssessmentView"}},
                    "400": {"description": "Invalid JSON body", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conversation completed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/doctors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "List doctors",
                "operationId": "listDoctors",
                "parameters": [
                    {"type": "boolean", "description": "Only doctors accepting patients", "name": "active", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListDoctorsResponse"}},
                    "503": {"description": "Database unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/doctors/{id}": {
            "put": {
                "description": "Active defaults to true. Inactive doctors keep their queue but accept no new tickets.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "Create or update a doctor",
                "operationId": "upsertDoctor",
                "parameters": [
                    {"type": "string", "description": "Doctor ID", "name": "id", "in": "path", "required": true},
                    {"description": "Name and active flag", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.UpsertDoctorRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Doctor"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/doctors/{id}/call-next": {
            "post": {
                "description": "Moves the doctor's highest-priority waiting ticket into consultation. Fails while another consultation is active.",
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Call the next patient",
                "operationId": "callNext",
                "parameters": [
                    {"type": "string", "description": "Doctor ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "404": {"description": "No waiting ticket", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Slot occupied", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Database unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/doctors/{id}/reset": {
            "post": {
                "description": "Withdraws every waiting ticket of the doctor. A consultation in progress is left alone.",
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Reset a doctor's queue",
                "operationId": "resetDoctorQueue",
                "parameters": [
                    {"type": "string", "description": "Doctor ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ResetResponse"}},
                    "400": {"description": "Unknown doctor", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Database unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/doctors/{id}/tickets": {
            "post": {
                "description": "Issues the next ticket number of the day for the doctor. Exactly one identity header is required. An existing active ticket of the caller is returned with 200.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Join a doctor's queue",
                "operationId": "createTicket",
                "parameters": [
                    {"type": "string", "description": "Doctor ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Authenticated user id (set upstream)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Anonymous session id", "name": "X-Session-ID", "in": "header"},
                    {"description": "Notes and category", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.CreateTicketRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing active ticket", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Body too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Allocation failed or database unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/queue": {
            "get": {
                "description": "Consultations first, then waiting tickets by priority score, then recent history. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Queue"],
                "summary": "Ordered queue view",
                "operationId": "listQueue",
                "parameters": [
                    {"type": "string", "description": "Doctor filter", "name": "doctor_id", "in": "query"},
                    {"type": "string", "example": "waiting,in_consultation", "description": "Comma-separated statuses", "name": "status", "in": "query"},
                    {"type": "integer", "description": "Finished/withdrawn rows (default 20, max 200, 0 = all)", "name": "history", "in": "query"},
                    {"type": "string", "description": "ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/queueview.View"}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Invalid status filter", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Database unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tickets/{id}": {
            "get": {
                "description": "Returns the ticket and, while it waits, its 1-based position in the doctor's queue.",
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Get a ticket",
                "operationId": "getTicket",
                "parameters": [
                    {"type": "string", "description": "Ticket ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.TicketWithPosition"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "patch": {
                "description": "Applies staff edits to notes and category and returns the rescored ticket. Omitted fields are unchanged.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Edit a ticket",
                "operationId": "updateTicket",
                "parameters": [
                    {"type": "string", "description": "Ticket ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpdateTicketRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Ticket is closed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tickets/{id}/finish": {
            "post": {
                "description": "Ends the consultation and frees the doctor's slot. Finishing a finished ticket is a no-op.",
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Finish a consultation",
                "operationId": "finishTicket",
                "parameters": [
                    {"type": "string", "description": "Ticket ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tickets/{id}/resume": {
            "post": {
                "description": "Puts a withdrawn ticket of the current day back in the queue and restarts its waiting time.",
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Resume a withdrawn ticket",
                "operationId": "resumeTicket",
                "parameters": [
                    {"type": "string", "description": "Ticket ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tickets/{id}/withdraw": {
            "post": {
                "description": "Takes a waiting ticket out of the queue. Its number is not reused.",
                "produces": ["application/json"],
                "tags": ["Tickets"],
                "summary": "Withdraw a ticket",
                "operationId": "withdrawTicket",
                "parameters": [
                    {"type": "string", "description": "Ticket ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Ticket"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Assessment": {
            "type": "object",
            "properties": {
                "confidence_score": {"type": "number"},
                "degraded": {"type": "boolean"},
                "factors": {"type": "object", "additionalProperties": {"type": "number"}},
                "reasoning": {"type": "string"},
                "recommended_action": {"type": "string", "enum": ["consultation_immediate", "teleconsultation", "attendre"]},
                "urgency_band": {"type": "string", "enum": ["immediate", "high", "medium", "low"]},
                "urgency_score": {"type": "number"}
            }
        },
        "domain.Conversation": {
            "type": "object",
            "properties": {
                "archived_at": {"type": "string"},
                "assessment": {"$ref": "#/definitions/domain.Assessment"},
                "created_at": {"type": "string"},
                "degraded": {"type": "boolean"},
                "id": {"type": "string"},
                "last_message_at": {"type": "string"},
                "patient_ref": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
                "step": {"type": "string"},
                "ticket_ref": {"type": "string"},
                "updated_at": {"type": "string"},
                "urgency_level": {"type": "integer"}
            }
        },
        "domain.ConversationMessage": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "conversation_id": {"type": "string"},
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "sender": {"type": "string", "enum": ["patient", "assistant", "staff"]},
                "structured_answer": {"type": "object"}
            }
        },
        "domain.Doctor": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "name": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.Ticket": {
            "type": "object",
            "properties": {
                "called_at": {"type": "string"},
                "category": {"type": "string", "enum": ["emergency", "priority", "regular", "followup"]},
                "created_at": {"type": "string"},
                "day": {"type": "string", "example": "2025-03-02"},
                "doctor_id": {"type": "string"},
                "finished_at": {"type": "string"},
                "id": {"type": "string"},
                "last_priority_update": {"type": "string"},
                "notes": {"type": "string"},
                "number": {"type": "integer"},
                "priority_factors": {"type": "object"},
                "priority_score": {"type": "number"},
                "session_id": {"type": "string"},
                "status": {"type": "string", "enum": ["waiting", "in_consultation", "finished", "withdrawn"]},
                "updated_at": {"type": "string"},
                "user_id": {"type": "string"},
                "wait_since": {"type": "string"}
            }
        },
        "handlers.CreateTicketRequest": {
            "type": "object",
            "properties": {
                "category": {"type": "string", "example": "regular"},
                "notes": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "ticket not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.ListDoctorsResponse": {
            "type": "object",
            "properties": {
                "doctors": {"type": "array", "items": {"$ref": "#/definitions/domain.Doctor"}}
            }
        },
        "handlers.ResetResponse": {
            "type": "object",
            "properties": {
                "doctor_id": {"type": "string"},
                "withdrawn": {"type": "integer"}
            }
        },
        "handlers.StartAssessmentRequest": {
            "type": "object",
            "properties": {
                "ticket_id": {"type": "string"}
            }
        },
        "handlers.UpdateTicketRequest": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "handlers.UpsertDoctorRequest": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "name": {"type": "string"}
            }
        },
        "queueview.Entry": {
            "type": "object",
            "allOf": [{"$ref": "#/definitions/domain.Ticket"}],
            "properties": {
                "highlighted": {"type": "boolean"},
                "position": {"type": "integer"}
            }
        },
        "queueview.View": {
            "type": "object",
            "properties": {
                "counts": {"type": "object", "additionalProperties": {"type": "integer"}},
                "doctor_id": {"type": "string"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/queueview.Entry"}}
            }
        },
        "services.AssessmentView": {
            "type": "object",
            "properties": {
                "assessment": {"$ref": "#/definitions/domain.Assessment"},
                "conversation": {"$ref": "#/definitions/domain.Conversation"},
                "info": {"type": "string"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.ConversationMessage"}},
                "prompt": {"$ref": "#/definitions/urgency.Prompt"},
                "warnings": {"type": "array", "items": {"$ref": "#/definitions/services.Warning"}}
            }
        },
        "services.TicketWithPosition": {
            "type": "object",
            "allOf": [{"$ref": "#/definitions/domain.Ticket"}],
            "properties": {
                "position": {"type": "integer"}
            }
        },
        "services.Warning": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "degraded_assessment"},
                "message": {"type": "string"}
            }
        },
        "urgency.Answer": {
            "type": "object",
            "properties": {
                "choice": {"type": "string", "example": "few_hours"},
                "level": {"type": "integer", "example": 7},
                "options": {"type": "array", "items": {"type": "string"}},
                "text": {"type": "string"}
            }
        },
        "urgency.Option": {
            "type": "object",
            "properties": {
                "factor": {"type": "number"},
                "id": {"type": "string"},
                "label": {"type": "string"}
            }
        },
        "urgency.Prompt": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["scale", "multi_select", "single_select"]},
                "max": {"type": "integer"},
                "min": {"type": "integer"},
                "options": {"type": "array", "items": {"$ref": "#/definitions/urgency.Option"}},
                "step": {"type": "string"},
                "text": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Clinic Queue API",
	Description:      "Ticket queue, consultation slots and urgency intake for a clinic.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
