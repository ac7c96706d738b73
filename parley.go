// Package parley carries the application identity reported by logging,
// health checks, and the command line entry points
package parley

const (
	// Name is the service name
	Name = "parley"

	// Version is the service version
	Version = "0.4.1"
)
