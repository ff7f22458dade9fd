package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateSession = errors.New("order already exists for checkout session")
	ErrPersistence      = errors.New("order persistence failure")
)

// PersistenceError wraps a backend failure with the operation and record key involved.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistenceError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Key: key, Err: err}
}

// OrderStore is implemented by every order backend.
type OrderStore interface {
	Create(ctx context.Context, order *Order) (*Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByStripeSessionID(ctx context.Context, sessionID string) (*Order, error)
	Update(ctx context.Context, id uuid.UUID, patch OrderPatch) (*Order, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// FindAll returns orders newest first. A limit of zero or less returns every order.
	FindAll(ctx context.Context, limit int) ([]*Order, error)
	FindByUserID(ctx context.Context, userID string, excludeCart bool) ([]*Order, error)
	Ping(ctx context.Context) error
	Close() error
}
