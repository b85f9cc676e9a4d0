// Package idgen mints short, URL-safe identifiers for stream subscriptions
// and live connections.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// SubscriptionPrefix marks poller subscription ids created for stream
// connections.
const SubscriptionPrefix = "sub-"

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 12
)

// Subscription returns a fresh subscription id such as "sub-4fK9aQ2mZx7b".
func Subscription() (string, error) {
	return WithPrefix(SubscriptionPrefix)
}

// WithPrefix returns prefix followed by 12 random alphanumeric characters.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + id, nil
}
