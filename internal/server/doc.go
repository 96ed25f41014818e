// Package server exposes the vidpipe HTTP API.
//
// Routes are mounted on a chi router: job submission and inspection under
// /api/jobs, live progress over Server-Sent Events and WebSocket, backend
// and quota views, the daemon log long-poll, and Prometheus metrics. When a
// token is configured every /api route requires "Authorization: Bearer".
package server
