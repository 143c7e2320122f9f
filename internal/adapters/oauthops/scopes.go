package oauthops

import "strings"

// splitScopes splits a space-separated scope string, dropping empty entries.
func splitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
