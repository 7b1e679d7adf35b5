// Package instance names the running process for logs and lock owners.
package instance

import (
	"os"

	"github.com/angelmondragon/payout-ledger/pkg/env"
)

const fallbackID = "local"

// GetID returns LEDGER_INSTANCE_ID, the platform dyno name, or the hostname,
// in that order.
func GetID() string {
	if id := env.Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
