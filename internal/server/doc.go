// Package server exposes calbrief over a local JSON API for desktop
// front-ends and scripts.
//
// Routes:
//
//	POST /auth/login     run (or join) the browser consent flow
//	GET  /auth/status    stored credential state
//	POST /auth/logout    delete and revoke the credential
//	GET  /events         ?date=YYYY-MM-DD, default today
//	GET  /messages       ?date=YYYY-MM-DD&variant=past|present|future
//	POST /cache/clear    drop cached events and messages
//	GET  /metrics        Prometheus metrics
//	GET  /healthz        liveness
//
// Every reply is a Response envelope {success, error, data}. Authentication
// failures map to 401, a missing generator key to 412, upstream calendar and
// generator failures to 502.
//
// The server binds to loopback by default and has no authentication of its
// own.
package server
