// Command backofficectl is an operator client for the housing back office.
//
// It signs in against the API, keeps the session in a per-user file and
// ends it automatically when the token expires.
//
// Usage:
//
//	backofficectl login --email admin@example.org
//	backofficectl whoami
//	backofficectl get /api/v1/tenants
//	backofficectl logout
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
