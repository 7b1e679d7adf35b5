// Package env reads process settings that are needed before config.Load runs,
// such as the log format.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces ledger variables.
const Prefix = "LEDGER_"

// Get returns LEDGER_<key> if set, then <key>, then fallback.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, Prefix)
	if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
