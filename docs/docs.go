package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Health Check",
                "description": "Check if server is running and where state is stored",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "Server is healthy"
                    }
                }
            }
        },
        "/state": {
            "get": {
                "tags": ["state"],
                "summary": "Get application state",
                "description": "Returns the active project and the delivered history",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "Current state",
                        "schema": {"$ref": "#/definitions/entities.AppState"}
                    }
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["state"],
                "summary": "Get delivery statistics",
                "description": "Totals, deliveries this month and the active deadline countdown",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "Statistics",
                        "schema": {"$ref": "#/definitions/entities.Stats"}
                    }
                }
            }
        },
        "/start-project": {
            "post": {
                "tags": ["projects"],
                "summary": "Start a project",
                "description": "Makes the given project the active one",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "in": "body",
                        "name": "request",
                        "description": "Project data",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ports.StartProjectRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Updated state",
                        "schema": {"$ref": "#/definitions/entities.AppState"}
                    },
                    "400": {
                        "description": "Missing or invalid name or deadlineDays",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    },
                    "409": {
                        "description": "A project is already active",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    },
                    "500": {
                        "description": "Malformed request body",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        },
        "/deliver-project": {
            "post": {
                "tags": ["projects"],
                "summary": "Deliver the active project",
                "description": "Moves the active project into the delivered history",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "Updated state",
                        "schema": {"$ref": "#/definitions/entities.AppState"}
                    },
                    "400": {
                        "description": "No active project",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    },
                    "500": {
                        "description": "Delivery not persisted (strict persistence)",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        },
        "/reset-state": {
            "post": {
                "tags": ["state"],
                "summary": "Reset all data",
                "description": "Clears the active project and the delivered history",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "Default state",
                        "schema": {"$ref": "#/definitions/entities.AppState"}
                    },
                    "500": {
                        "description": "The reset could not be persisted",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "entities.ActiveProject": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "Website"},
                "startedAt": {"type": "string", "format": "date-time"},
                "deadlineDays": {"type": "integer", "example": 10}
            }
        },
        "entities.DeliveredProject": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "startedAt": {"type": "string", "format": "date-time"},
                "deliveredAt": {"type": "string", "format": "date-time"}
            }
        },
        "entities.AppState": {
            "type": "object",
            "properties": {
                "activeProject": {"$ref": "#/definitions/entities.ActiveProject"},
                "deliveredProjects": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/entities.DeliveredProject"}
                }
            }
        },
        "entities.Countdown": {
            "type": "object",
            "properties": {
                "remainingSeconds": {"type": "integer"},
                "days": {"type": "integer"},
                "hours": {"type": "integer"},
                "minutes": {"type": "integer"},
                "seconds": {"type": "integer"},
                "expired": {"type": "boolean"}
            }
        },
        "entities.Stats": {
            "type": "object",
            "properties": {
                "totalDelivered": {"type": "integer"},
                "deliveredThisMonth": {"type": "integer"},
                "activeProject": {"type": "string"},
                "deadline": {"type": "string", "format": "date-time"},
                "countdown": {"$ref": "#/definitions/entities.Countdown"}
            }
        },
        "ports.StartProjectRequest": {
            "type": "object",
            "required": ["name", "deadlineDays"],
            "properties": {
                "name": {"type": "string", "example": "Website"},
                "deadlineDays": {"type": "integer", "minimum": 1, "maximum": 36500, "example": 10}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "No active project to deliver."}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3001",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Project Tracker API",
	Description:      "Local API for the active project countdown and delivered history",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
