// Package server implements the HTTP API server for the orchestrator
//
// This package provides REST endpoints for inbound messages, event
// webhooks, workflow and instance listings, archived report retrieval,
// health checks, Prometheus metrics, and WebSocket chat connections
package server
