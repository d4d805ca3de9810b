package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Sentinel errors returned (optionally wrapped) by every card store so the
// services can translate them without knowing the driver.
var (
	ErrNotFound      = errors.New("card not found")
	ErrDuplicateCNIC = errors.New("cnic already exists")
	ErrUnavailable   = errors.New("card store unavailable")
)

// classify maps a mongo driver error onto the store sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicateCNIC
	case errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded),
		mongo.IsNetworkError(err),
		mongo.IsTimeout(err):
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
