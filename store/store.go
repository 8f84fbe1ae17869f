// Package store defines the contract of the remote, watchable key-value store
// that holds a namespace, and provides Local, an in-process implementation.
package store

import (
	"context"
	"errors"
)

const (
	EventPut EventType = iota
	EventDelete
	EventConnected
	EventDisconnected
)

type (
	EventType int

	// Event is one change notification. Path and Value are set for put, Path
	// alone for delete.
	Event struct {
		Type  EventType
		Path  string
		Value string
	}

	// Store is the remote store contract. Every operation may block on the
	// network and may fail.
	Store interface {
		// Read returns every entry at or below prefix.
		Read(ctx context.Context, prefix string) (map[string]string, error)

		// Watch opens a change stream scoped to prefix.
		Watch(ctx context.Context, prefix string) (Watcher, error)

		// Put sets the value at path and returns after the store acknowledged it.
		Put(ctx context.Context, path, value string) error

		// Delete removes the value at path. Deleting an absent path is not an error.
		Delete(ctx context.Context, path string) error

		// DeletePrefix removes every entry at or below prefix.
		DeletePrefix(ctx context.Context, prefix string) error
	}

	// Watcher is a cancellable change stream. The events channel is closed
	// when the stream ends, either by Cancel or because the store dropped it;
	// the latter is also announced with an EventDisconnected when possible.
	Watcher interface {
		Events() <-chan Event
		Cancel()
	}
)

var (
	ErrOffline     = errors.New("store is offline")
	ErrInvalidPath = errors.New("invalid path")
)

func (et EventType) String() string {
	switch et {
	case EventPut:
		return "put"
	case EventDelete:
		return "delete"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
