package utils

import "github.com/google/uuid"

// GetToken returns a random token.
func GetToken() string {
	return uuid.NewString()
}

// ShortUUID returns the first 8 hex characters of a random uuid.
func ShortUUID() string {
	return uuid.NewString()[:8]
}
