// Package timeouts holds the durations shared by the budget node and its
// clients.
package timeouts

import "time"

// GRPCDial caps how long a client waits for the node to report healthy.
const GRPCDial = 5 * time.Second

// GRPCRequest caps a single operation call from the command-line client.
const GRPCRequest = 10 * time.Second

// ReadHeader limits how long the HTTP API waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long in-flight requests may drain on stop.
const Shutdown = 10 * time.Second
