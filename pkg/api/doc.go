// Package api defines the core data types and interfaces for the workflow
// orchestration engine
//
// This package contains all the shared types used across the orchestrator,
// including workflow definitions, the step contract, instance state, events,
// and HTTP messages
package api
