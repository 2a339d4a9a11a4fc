// Package config handles loading and validating back office configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Merging an optional .env file into the environment
//   - Overriding with BACKOFFICE_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The token signing secret should be set via BACKOFFICE_JWT_SECRET or .env
//   - A missing or short signing secret is fatal: Load returns an error
//     wrapping ErrFatalConfiguration and the process must exit
//   - Rotating the secret invalidates every outstanding session token
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ttl := cfg.Security.JWT.TokenTTL()
package config
