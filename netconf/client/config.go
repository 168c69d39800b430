package client

import "time"

// Defines structs describing netconf configuration.

// Config defines properties that configure netconf session behaviour.
type Config struct {
	// Defines the time that the client will wait to receive a hello message from the server.
	SetupTimeout time.Duration
	// Capabilities advertised to the server. Defaults to common.DefaultCapabilities.
	Capabilities []string
}

// DefaultConfig holds the values applied to any property left unset.
var DefaultConfig = &Config{
	SetupTimeout: 5 * time.Second,
}
