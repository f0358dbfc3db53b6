// Package api exposes a Queue and the order service over HTTP.
//
// Routes:
//
//	POST /api/orders/simulate   submit a batch of parallel order jobs
//	GET  /api/orders/simulate   report orders and duplicate numbers
//	POST /api/jobs              submit any registered job
//	GET  /api/jobs/status?id=   poll a job (pending, completed, error, not_found)
//	GET  /api/jobs/{id}         full job record
//	GET  /api/keys/{key}        gate state of a key
//	GET  /api/events            WebSocket stream of job lifecycle events
//	GET  /health                liveness
package api
