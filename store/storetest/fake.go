// Package storetest provides a controllable store.Store for tests.
package storetest

import (
	"context"
	"maps"
	"sync"

	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-cns-console/store"
)

// marks a prefix delete inside write; never delivered
const eventPurge store.EventType = -1

type (
	// Fake is an in-memory store. In manual mode, change notifications are
	// queued until Flush, which lets a test observe the window between a
	// write acknowledgement and its notification.
	Fake struct {
		mu       sync.Mutex
		data     map[string]string
		watchers map[*fakeWatcher]struct{}
		manual   bool
		pending  []store.Event
		readErr  error
		watchErr error
		writeErr error
		writes   int
	}

	fakeWatcher struct {
		f      *Fake
		prefix string
		ch     chan store.Event
		closed bool
	}
)

func New() *Fake {
	return &Fake{
		data:     map[string]string{},
		watchers: map[*fakeWatcher]struct{}{},
	}
}

// Seed sets entries without notifying watchers.
func (f *Fake) Seed(entries map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.data, entries)
}

func (f *Fake) SetManual(manual bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = manual
}

func (f *Fake) FailRead(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *Fake) FailWatch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchErr = err
}

func (f *Fake) FailWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Writes returns the number of acknowledged write operations.
func (f *Fake) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Watchers returns the number of open change streams.
func (f *Fake) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

// Data returns a copy of the stored entries.
func (f *Fake) Data() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.data)
}

// Flush delivers the queued notifications.
func (f *Fake) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending := f.pending
	f.pending = nil
	for _, ev := range pending {
		f.deliverUnlocked(ev)
	}
}

// Emit delivers an arbitrary event to every matching watcher.
func (f *Fake) Emit(ev store.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliverUnlocked(ev)
}

// Drop ends every change stream as if the connection was lost.
func (f *Fake) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for w := range f.watchers {
		w.ch <- store.Event{Type: store.EventDisconnected}
		w.closeUnlocked()
	}
}

func (f *Fake) Read(ctx context.Context, prefix string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return nil, f.readErr
	}

	entries := map[string]string{}
	for path, value := range f.data {
		if nspath.HasPrefix(path, prefix) {
			entries[path] = value
		}
	}
	return entries, nil
}

func (f *Fake) Watch(ctx context.Context, prefix string) (store.Watcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watchErr != nil {
		return nil, f.watchErr
	}

	w := &fakeWatcher{f: f, prefix: nspath.Clean(prefix), ch: make(chan store.Event, 1024)}
	f.watchers[w] = struct{}{}
	return w, nil
}

func (f *Fake) write(ev store.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++

	events := []store.Event{ev}
	switch ev.Type {
	case store.EventPut:
		f.data[ev.Path] = ev.Value
	case store.EventDelete:
		if _, exists := f.data[ev.Path]; !exists {
			return nil
		}
		delete(f.data, ev.Path)
	case eventPurge:
		events = events[:0]
		for path := range f.data {
			if nspath.HasPrefix(path, ev.Path) {
				delete(f.data, path)
				events = append(events, store.Event{Type: store.EventDelete, Path: path})
			}
		}
	}

	if f.manual {
		f.pending = append(f.pending, events...)
	} else {
		for _, e := range events {
			f.deliverUnlocked(e)
		}
	}
	return nil
}

func (f *Fake) deliverUnlocked(ev store.Event) {
	for w := range f.watchers {
		if ev.Path == "" || nspath.HasPrefix(ev.Path, w.prefix) {
			w.ch <- ev
		}
	}
}

func (f *Fake) Put(ctx context.Context, path, value string) error {
	return f.write(store.Event{Type: store.EventPut, Path: nspath.Clean(path), Value: value})
}

func (f *Fake) Delete(ctx context.Context, path string) error {
	return f.write(store.Event{Type: store.EventDelete, Path: nspath.Clean(path)})
}

func (f *Fake) DeletePrefix(ctx context.Context, prefix string) error {
	return f.write(store.Event{Type: eventPurge, Path: nspath.Clean(prefix)})
}

func (w *fakeWatcher) Events() <-chan store.Event {
	return w.ch
}

func (w *fakeWatcher) Cancel() {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	w.closeUnlocked()
}

func (w *fakeWatcher) closeUnlocked() {
	if !w.closed {
		w.closed = true
		delete(w.f.watchers, w)
		close(w.ch)
	}
}
