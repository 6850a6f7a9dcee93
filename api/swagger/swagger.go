package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academy Import API",
        "description": "Bulk spreadsheet import, review and export for the academy backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Imports", "description": "Upload review and bulk execution"},
        {"name": "Results", "description": "Result exports and bulk deletion"}
    ],
    "paths": {
        "/imports/students": {
            "post": {
                "tags": ["Imports"],
                "summary": "Review a student upload",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "photos", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unreadable or unsupported file", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/results": {
            "post": {
                "tags": ["Imports"],
                "summary": "Review a result upload",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "mode", "in": "formData", "type": "string", "enum": ["create", "update"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/sessions/{id}": {
            "get": {
                "tags": ["Imports"],
                "summary": "Get a pending import session",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Session expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/sessions/{id}/errors": {
            "get": {
                "tags": ["Imports"],
                "summary": "Download rejected rows as a workbook",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Workbook"}}
            }
        },
        "/imports/sessions/{id}/execute": {
            "post": {
                "tags": ["Imports"],
                "summary": "Confirm a session and queue its valid rows",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/runs": {
            "get": {
                "tags": ["Imports"],
                "summary": "List recent bulk runs",
                "parameters": [{"name": "limit", "in": "query", "type": "integer"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/runs/{id}": {
            "get": {
                "tags": ["Imports"],
                "summary": "Get bulk run progress and outcome",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/imports/runs/{id}/report": {
            "get": {
                "tags": ["Imports"],
                "summary": "Download the outcome of a completed run as PDF",
                "produces": ["application/pdf"],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "PDF"}, "409": {"description": "Run still in progress"}}
            }
        },
        "/imports/templates/{kind}": {
            "get": {
                "tags": ["Imports"],
                "summary": "Download a blank import template",
                "parameters": [
                    {"name": "kind", "in": "path", "type": "string", "required": true, "enum": ["student_import", "result_create", "result_update"]},
                    {"name": "format", "in": "query", "type": "string", "enum": ["xlsx", "csv"]}
                ],
                "responses": {"200": {"description": "Template file"}}
            }
        },
        "/results/bulk-delete": {
            "post": {
                "tags": ["Results"],
                "summary": "Queue deletion of results by register number",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkDeleteRequest"}}
                ],
                "responses": {
                    "200": {"description": "Nothing to delete", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/results/export": {
            "post": {
                "tags": ["Results"],
                "summary": "Export all results as a workbook",
                "responses": {
                    "200": {"description": "Signed link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Results"],
                "summary": "Download an export through its signed token",
                "security": [],
                "parameters": [{"name": "token", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Workbook"}, "403": {"description": "Invalid or expired token"}}
            }
        }
    },
    "definitions": {
        "BulkDeleteRequest": {
            "type": "object",
            "properties": {
                "register_numbers": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["register_numbers"]
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
