package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UNIOSUN TACDRA API",
        "description": "Transcript and Academic Certificate Document Request API",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Accounts and sessions"},
        {"name": "Applications", "description": "Document request workflow"},
        {"name": "Payments", "description": "Remita payment lifecycle"},
        {"name": "Documents", "description": "Issued document downloads"},
        {"name": "Tracking", "description": "Public status lookup"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a requester account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate email or matriculation number"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue tokens",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List the caller's applications",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Applications"],
                "summary": "Submit a document request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateApplicationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid category, subtype or delivery combination"}
                }
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get application detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/applications/{id}/transition": {
            "post": {
                "tags": ["Applications"],
                "summary": "Apply a reviewer decision",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Transition not allowed for role"},
                    "409": {"description": "Concurrent modification or terminal state"}
                }
            }
        },
        "/applications/{id}/finalize": {
            "post": {
                "tags": ["Applications"],
                "summary": "Complete processing into the delivery-determined terminal status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/cancel": {
            "post": {
                "tags": ["Applications"],
                "summary": "Cancel an application before review starts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Past the cancellable window"}
                }
            }
        },
        "/applications/review": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications awaiting the caller's desk",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/initialize": {
            "post": {
                "tags": ["Payments"],
                "summary": "Initialize a gateway payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InitializePaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/verify": {
            "post": {
                "tags": ["Payments"],
                "summary": "Verify a payment reference with the gateway",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/webhook": {
            "post": {
                "tags": ["Payments"],
                "summary": "Inbound gateway notification",
                "responses": {
                    "200": {"description": "Acknowledged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/track/{code}": {
            "get": {
                "tags": ["Tracking"],
                "summary": "Public status lookup by tracking code",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown tracking code"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "matriculation_number": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "phone_number": {"type": "string"},
                "department": {"type": "string"},
                "faculty": {"type": "string"},
                "graduation_year": {"type": "integer"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateApplicationRequest": {
            "type": "object",
            "properties": {
                "category": {"type": "string", "enum": ["TRANSCRIPT", "CERTIFICATE_COPY", "DOCUMENT_VERIFICATION"]},
                "transcriptType": {"type": "string", "enum": ["STUDENT_COPY", "OFFICIAL_COPY"]},
                "deliveryMethod": {"type": "string", "enum": ["EMAIL", "PICKUP", "COURIER"]},
                "purpose": {"type": "string"},
                "recipientName": {"type": "string"},
                "recipientEmail": {"type": "string"},
                "recipientAddress": {"type": "string"},
                "institutionName": {"type": "string"},
                "institutionEmail": {"type": "string"},
                "institutionAddress": {"type": "string"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "note": {"type": "string"}
            }
        },
        "InitializePaymentRequest": {
            "type": "object",
            "properties": {
                "applicationId": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
