package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Bulletins API",
        "description": "Report-card aggregation, rendering and batch generation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Bulletins", "description": "Single report cards and class summaries"},
        {"name": "Bulletin Batches", "description": "Queued generation with progress and cancellation"},
        {"name": "Sessions", "description": "Evaluation sessions and marks"}
    ],
    "paths": {
        "/bulletins/students/{id}": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Build a student's report card",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "periodId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Report card", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student, period or grades not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulletins/students/{id}/generate": {
            "post": {
                "tags": ["Bulletins"],
                "summary": "Generate one bulletin file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateBulletinRequest"}}
                ],
                "responses": {
                    "201": {"description": "Generated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Abandoned, no destination", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Rendering failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulletins/classes/{id}/summary": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Download the class ranking sheet",
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "periodId", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"]}
                ],
                "responses": {
                    "200": {"description": "Summary file"}
                }
            }
        },
        "/bulletins/download/{token}": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Download a generated bulletin via signed token",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Bulletin file"},
                    "401": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulletins/batches": {
            "post": {
                "tags": ["Bulletin Batches"],
                "summary": "Queue bulletin generation for a class or a list of students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/QueueBatchRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Abandoned, no destination", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A batch is already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulletins/batches/progress": {
            "get": {
                "tags": ["Bulletin Batches"],
                "summary": "Current generation progress",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Progress snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulletins/batches/progress/stream": {
            "get": {
                "tags": ["Bulletin Batches"],
                "summary": "Stream generation progress as server-sent events",
                "security": [{"BearerAuth": []}],
                "produces": ["text/event-stream"],
                "responses": {
                    "200": {"description": "progress events"}
                }
            }
        },
        "/bulletins/batches/cancel": {
            "post": {
                "tags": ["Bulletin Batches"],
                "summary": "Cancel the running batch",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "202": {"description": "Cancellation requested", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulletins/batches/{id}": {
            "get": {
                "tags": ["Bulletin Batches"],
                "summary": "Batch history record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Record an evaluation session with its marks",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid marks", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateBulletinRequest": {
            "type": "object",
            "required": ["periodId"],
            "properties": {
                "periodId": {"type": "string"},
                "format": {"type": "string", "enum": ["pdf", "csv"]},
                "folder": {"type": "string"}
            }
        },
        "QueueBatchRequest": {
            "type": "object",
            "required": ["periodId"],
            "properties": {
                "periodId": {"type": "string"},
                "classId": {"type": "string"},
                "studentIds": {"type": "array", "items": {"type": "string"}},
                "format": {"type": "string", "enum": ["pdf", "csv"]},
                "folder": {"type": "string"}
            }
        },
        "SubmitSessionRequest": {
            "type": "object",
            "required": ["templateId", "periodId", "heldOn"],
            "properties": {
                "templateId": {"type": "string"},
                "periodId": {"type": "string"},
                "heldOn": {"type": "string", "format": "date-time"},
                "marks": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "studentId": {"type": "string"},
                            "mark": {"type": "number"}
                        }
                    }
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
