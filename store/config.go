package store

import "time"

// Config holds configuration for the DynamoDB Store.
type Config struct {
	// CustomerTable is the name of the customers table.
	// Default: "twine_customers"
	CustomerTable string

	// CredentialTable is the name of the credentials table.
	// Default: "twine_credentials"
	CredentialTable string

	// BatchRetryInterval is the first wait before retrying unprocessed
	// BatchGetItem keys. The wait doubles on each retry.
	// Default: 50ms
	BatchRetryInterval time.Duration

	// BatchRetryTimeout bounds the total time spent retrying one batch.
	// Default: 30s
	BatchRetryTimeout time.Duration
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		CustomerTable:      "twine_customers",
		CredentialTable:    "twine_credentials",
		BatchRetryInterval: 50 * time.Millisecond,
		BatchRetryTimeout:  30 * time.Second,
	}
}

// validate fills in missing settings.
func (c *Config) validate() {
	if c.CustomerTable == "" {
		c.CustomerTable = "twine_customers"
	}
	if c.CredentialTable == "" {
		c.CredentialTable = "twine_credentials"
	}
	if c.BatchRetryInterval <= 0 {
		c.BatchRetryInterval = 50 * time.Millisecond
	}
	if c.BatchRetryTimeout <= 0 {
		c.BatchRetryTimeout = 30 * time.Second
	}
}
