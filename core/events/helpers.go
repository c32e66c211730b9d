package events

import "strings"

func normalizeReason(reason string) string {
	return strings.ToLower(strings.TrimSpace(reason))
}
