// Package handlers implements the ops HTTP API of the scheduler.
//
// Handlers validate requests, call the scheduler, the scaling history store
// or the system enqueuer, and map domain errors to HTTP status codes.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                     HTTP Request (Gin)                          │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                      Handler (this package)                     │
//	│  - Request validation                                           │
//	│  - Error mapping to HTTP status codes                           │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│   Scheduler   │   ScalingStore (history)   │   System enqueuer  │
//	└─────────────────────────────────────────────────────────────────┘
//
// # API Endpoints
//
// All routes are mounted under /api/v1 by the server.
//
//	┌────────┬─────────────────────────┬─────────────────────────────────────┐
//	│ Method │ Endpoint                │ Description                         │
//	├────────┼─────────────────────────┼─────────────────────────────────────┤
//	│ GET    │ /status                 │ Worker pool snapshot                │
//	│ GET    │ /scaling/history        │ Scaling actions, newest first       │
//	│ GET    │ /scaling/history/latest │ Most recent scaling action          │
//	│ POST   │ /events                 │ Submit a system event               │
//	│ DELETE │ /events/{id}            │ Cancel a pending event              │
//	│ POST   │ /targets/{id}/outdate   │ Retire workers bound to a function  │
//	└────────┴─────────────────────────┴─────────────────────────────────────┘
//
// GET /status:
//
//	{
//	    "total": 3, "activated": 2, "fresh": 1, "busy": 1, "targeted": 0,
//	    "queueSize": 4, "averageResponseTime": 12.5, "unit": "count"
//	}
//
// GET /scaling/history accepts limit (default 50, max 500), offset,
// direction (up or down), repeated reason and since (RFC3339). total counts
// every match, not just the page. format=xlsx returns the page as a workbook
// with one scale_actions sheet.
//
// POST /events:
//
//	{ "target": { "id": "fn-1", "handler": "index.handler" }, "payload": {...} }
//
// Response: 202 Accepted with { "id": "<event id>" }.
//
// # Error Handling
//
// Errors use the format { "error": "message" }.
//
//	┌─────────────────────────────┬────────┐
//	│ Error Type                  │ Status │
//	├─────────────────────────────┼────────┤
//	│ Validation error            │ 400    │
//	│ UnknownQueueError           │ 400    │
//	│ ResourceNotFoundError       │ 404    │
//	│ DuplicateEventError         │ 409    │
//	│ SchedulerClosedError        │ 503    │
//	│ Internal error              │ 500    │
//	└─────────────────────────────┴────────┘
package handlers
