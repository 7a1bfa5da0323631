package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ISDM API",
        "description": "Student directory of the Instituto Superior de Formación Docente y Técnica",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Students", "description": "Student records and the directory view"},
        {"name": "Careers", "description": "Careers offered by the institute"},
        {"name": "Authentication", "description": "Staff accounts"},
        {"name": "Health", "description": "Probes"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness probe with process counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Health"],
                "summary": "Ready once the first student snapshot arrived",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Waiting for the record store", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/careers": {
            "get": {
                "tags": ["Careers"],
                "summary": "List careers",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/students": {
            "get": {
                "tags": ["Students"],
                "summary": "Directory view of students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string", "description": "Substring of the full name or of the DNI without dots"},
                    {"name": "sortBy", "in": "query", "type": "string", "enum": ["a-z", "z-a", "reciente", "antiguo"]},
                    {"name": "status", "in": "query", "type": "string", "enum": ["todos", "activo", "pendiente", "inactivo"]},
                    {"name": "career", "in": "query", "type": "string", "description": "todas or a career name"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown query value", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "No snapshot yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Store rejected the write", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/students/export": {
            "get": {
                "tags": ["Students"],
                "summary": "Export the directory view",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sortBy", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "career", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/api/v1/students/live": {
            "get": {
                "tags": ["Students"],
                "summary": "Live directory session over websocket",
                "parameters": [
                    {"name": "access_token", "in": "query", "type": "string"}
                ],
                "responses": {"101": {"description": "Switching protocols"}}
            }
        },
        "/api/v1/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get a student",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Students"],
                "summary": "Partially update a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete a student",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "502": {"description": "Store rejected the write", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a staff account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignUpRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/password-reset": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Request a password reset link",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"email": {"type": "string"}}}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/profile": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Authentication"],
                "summary": "Update display name or photo",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"displayName": {"type": "string"}, "photoURL": {"type": "string"}}}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a directory export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown format or query value", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Export queue is full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export job status",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Job belongs to another user", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Export file"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ExportRequest": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "search": {"type": "string"},
                "sortBy": {"type": "string", "enum": ["a-z", "z-a", "reciente", "antiguo"]},
                "status": {"type": "string"},
                "career": {"type": "string"}
            }
        },
        "StudentInput": {
            "type": "object",
            "required": ["firstName", "lastName", "dni", "birthDate", "phoneMobile", "email", "career", "status"],
            "properties": {
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "dni": {"type": "string"},
                "birthDate": {"type": "string", "example": "21/03/2001"},
                "gender": {"type": "string"},
                "phoneMobile": {"type": "string"},
                "phoneHome": {"type": "string"},
                "email": {"type": "string"},
                "career": {"type": "string"},
                "status": {"type": "string", "enum": ["activo", "pendiente", "inactivo"]},
                "avatar": {"type": "string"}
            }
        },
        "SignUpRequest": {
            "type": "object",
            "required": ["email", "password", "confirmPassword"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "confirmPassword": {"type": "string"},
                "displayName": {"type": "string"}
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
