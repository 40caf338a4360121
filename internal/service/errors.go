// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"botify/internal/model"
	"botify/internal/repository"
)

// Error kinds surfaced to callers. Store failures wrap ErrStoreUnavailable.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
	ErrNotOwner           = errors.New("requester does not own this bot")
	ErrNotEntitled        = errors.New("bot must be purchased before download")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = repository.ErrEmailTaken
	ErrStoreUnavailable   = errors.New("store unavailable")

	ErrInvalidAmount      = model.ErrInvalidAmount
	ErrInsufficientFunds  = model.ErrInsufficientFunds
	ErrMonetizationLocked = model.ErrMonetizationLocked
	ErrInvalidRating      = model.ErrInvalidRating
)

var domainErrors = []error{
	ErrNotAuthenticated,
	ErrNotFound,
	ErrNotOwner,
	ErrNotEntitled,
	ErrForbidden,
	ErrInvalidInput,
	ErrInvalidCredentials,
	ErrEmailTaken,
	ErrStoreUnavailable,
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrMonetizationLocked,
	ErrInvalidRating,
}

// translate maps repository errors onto the service error kinds. Anything
// unrecognised is treated as the store being unavailable.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrBotNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// errorKind is the metrics label for err.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrNotEntitled):
		return "not_entitled"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrMonetizationLocked):
		return "monetization_locked"
	case errors.Is(err, ErrInvalidRating), errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "error"
}
