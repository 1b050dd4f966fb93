package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("Key not found")
	ErrInvalidJSON = errors.New("Value is not valid JSON")
	ErrClosed      = errors.New("Store is closed")
)

// Update notifies listeners that Key now holds Value, as raw JSON.
type Update struct {
	Key   string
	Value []byte
}

type Store interface {
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) ([]byte, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
