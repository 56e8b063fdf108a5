package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA ADP Mobile Session Gateway",
        "description": "Session lifecycle and authenticated access to the school API",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Session", "description": "Sign in, sign out and token refresh"},
        {"name": "AdminData", "description": "Aggregated admin lists"},
        {"name": "Proxy", "description": "Authenticated pass-through to the school API"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/session": {
            "get": {
                "tags": ["Session"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SessionEnvelope"}}
                }
            }
        },
        "/session/login": {
            "post": {
                "tags": ["Session"],
                "summary": "Sign in",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Login failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/session/logout": {
            "post": {
                "tags": ["Session"],
                "summary": "Sign out",
                "responses": {
                    "204": {"description": "Signed out"}
                }
            }
        },
        "/session/refresh": {
            "post": {
                "tags": ["Session"],
                "summary": "Refresh the session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SessionEnvelope"}},
                    "401": {"description": "Refresh failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session changed while refreshing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin-data": {
            "get": {
                "tags": ["AdminData"],
                "summary": "Admin data",
                "parameters": [
                    {"name": "refresh", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "No session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not an admin", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/{path}": {
            "get": {
                "tags": ["Proxy"],
                "summary": "Proxy to the school API",
                "parameters": [
                    {"name": "path", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Upstream response"},
                    "502": {"description": "Upstream unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Observability"],
                "summary": "Prometheus metrics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Gateway metrics summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "UserProfile": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "roles": {"type": "array", "items": {"type": "string"}}
            }
        },
        "SessionView": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["UNINITIALIZED", "AUTHENTICATED", "ANONYMOUS", "REFRESHING"]},
                "authenticated": {"type": "boolean"},
                "isLoading": {"type": "boolean"},
                "user": {"$ref": "#/definitions/UserProfile"},
                "displayName": {"type": "string"}
            }
        },
        "SessionEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/SessionView"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "array", "items": {"type": "string"}}
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
