// Package storage defines the subscription store interface and its implementations.
package storage

import (
	"context"
	"errors"

	"bili_bot/internal/model"
)

// ErrNotFound is returned when no subscription exists for a key.
var ErrNotFound = errors.New("subscription not found")

// UpdateFunc mutates a subscription in place. Returning an error aborts the
// update and leaves the stored record untouched.
type UpdateFunc func(sub *model.Subscription) error

// Storage is the interface for all persistence operations.
type Storage interface {
	Get(ctx context.Context, key model.Key) (*model.Subscription, error)
	List(ctx context.Context, subscriberID string) ([]model.Subscription, error)
	ListAll(ctx context.Context) ([]model.Subscription, error)
	ListSubscribers(ctx context.Context) ([]string, error)

	// Put inserts or replaces the record for sub.Key().
	Put(ctx context.Context, sub *model.Subscription) error
	// Update runs fn on the current record and stores the result atomically
	// with respect to other writers of the same key.
	Update(ctx context.Context, key model.Key, fn UpdateFunc) error
	Delete(ctx context.Context, key model.Key) error
	// DeleteSubscriber removes every record of a subscriber and returns how
	// many were removed.
	DeleteSubscriber(ctx context.Context, subscriberID string) (int, error)

	Close() error
}
