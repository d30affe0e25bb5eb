// Package api serves the operator HTTP API of the drone engine.
//
// Responses use a single JSON envelope:
//
//	{"result":"ok","data":{...},"correlationId":"..."}
//	{"result":"error","code":"...","message":"...","correlationId":"..."}
//
// Routes:
//
//	GET  /api/v1/health           liveness, no authentication
//	GET  /api/v1/state            navdata snapshot and scheduler counters (read)
//	GET  /api/v1/telemetry        server-sent event stream (telemetry)
//	POST /api/v1/flight/{action}  takeoff, land, mayday, trim, hover (control)
//	POST /api/v1/flight/move      timed movement on one axis (control)
//
// When the server is built without auth middleware every route is open.
package api
