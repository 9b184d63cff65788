package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": ["http"],
    "swagger": "2.0",
    "info": {
        "description": "{{.Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"tags": ["Stats"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/stats":  {"get": {"tags": ["Stats"], "summary": "Current GPU telemetry snapshot", "responses": {"200": {"description": "OK"}, "503": {"description": "no sample yet"}}}},
        "/clients": {"get": {"tags": ["Clients"], "summary": "Active Quick Sync clients", "responses": {"200": {"description": "OK"}}}},
        "/ws": {"get": {"tags": ["WebSocket"], "summary": "Stream GPU telemetry", "responses": {"101": {"description": "switching protocols"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8073",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "gpu-broadcast API",
	Description:      "Live Intel GPU telemetry for broadcast and media pipelines.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
