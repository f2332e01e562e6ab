// Package server exposes an agentruntime.Runtime over HTTP.
//
// Routes follow the app/user/session hierarchy for session management and
// memory, plus two turn-execution endpoints:
//
//	POST   /apps/{app}/users/{user}/sessions/{session}          create (optional {"state": ...} body)
//	GET    /apps/{app}/users/{user}/sessions/{session}          fetch with events
//	DELETE /apps/{app}/users/{user}/sessions/{session}          delete
//	GET    /apps/{app}/users/{user}/sessions                    list without events
//	POST   /apps/{app}/users/{user}/sessions/{session}/memory   ingest into memory
//	GET    /apps/{app}/users/{user}/memory/search?q=...         search memory
//	POST   /run                                                 batch turn, JSON event array
//	POST   /run_sse                                             streamed turn, server-sent events
//
// /run_sse frames each event as one "data: {json}" record and flushes per
// event; with "streaming": true in the body the stream also carries partial
// token fragments. Errors use {"error": "..."} bodies with conventional
// status codes (400, 404, 409, 500, 503).
package server
