// Package id generates prefixed identifiers for stored entities.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each entity kind.
const (
	PrefixUser        = "usr"
	PrefixBot         = "bot"
	PrefixTransaction = "txn"
	PrefixPurchase    = "pur"
)

// Generate returns prefix-<nanoid>, e.g. "bot-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics if the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// Telegram returns the user id used for a Telegram account.
func Telegram(telegramID int64) string {
	return fmt.Sprintf("tg-%d", telegramID)
}
