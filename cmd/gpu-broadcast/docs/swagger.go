// Package docs provides Swagger/OpenAPI annotations for the gpu-broadcast
// API. docs.go registers the resulting spec with swaggo/swag; re-run
// `swag init -g ../main.go -o .` after changing the annotations below.
package docs

// General API Info
//
//	@title						gpu-broadcast API
//	@version					0.1.0
//	@description				Live Intel GPU telemetry for broadcast and media pipelines: encoder/decoder load, engine utilization, frequency, power, and throttle state, over REST, WebSocket, Prometheus, and MQTT.
//
//	@license.name				MIT
//
//	@host						localhost:8073
//	@BasePath					/api/v1
//	@schemes					http
//
//	@tag.name					Stats
//	@tag.description			Current GPU telemetry snapshot
//	@tag.name					Clients
//	@tag.description			Active DRM / Quick Sync client accounting
//	@tag.name					WebSocket
//	@tag.description			Real-time telemetry streaming via WebSocket
