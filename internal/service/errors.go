// Package service implements metering and billing reconciliation on top of
// the account store, the usage log and the upstream completion API.
package service

import (
	"errors"
	"fmt"

	"github.com/tollgate/tollgate/internal/repository"
)

// Service errors.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrInvalidAmount       = errors.New("debit amount must be non-negative")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUpstream            = errors.New("upstream call failed")
	ErrStorage             = errors.New("storage failure")
)

// mapStoreError translates store errors into service errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrInvalidAmount):
		return ErrInvalidAmount
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}
