package auth

import "strings"

const bearerPrefix = "bearer "

// NormalizeToken strips surrounding whitespace, cookie quoting and an optional
// case-insensitive "Bearer " prefix. Every consumer of a presented token uses
// this so that revocation and verification see the same string.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		token = strings.TrimSpace(token[1 : len(token)-1])
	}
	if strings.EqualFold(token, strings.TrimSpace(bearerPrefix)) {
		return ""
	}
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}
