// Package env reads the few settings needed before config.Load runs.
package env

import "os"

// Prefix namespaces every tillq variable.
const Prefix = "TILLQ_"

// Get returns TILLQ_<key> when set, then the bare key, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return fallback
}
