package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-lane"
	"github.com/jimsnab/go-treestore"
)

const defaultWatchBuffer = 256

type (
	// Local is an in-process Store backed by a treestore. Watchers receive
	// notifications in mutation order. A watcher that falls behind by more
	// than its buffer is dropped, and must resynchronize.
	Local struct {
		mu         sync.Mutex
		l          lane.Lane
		ts         *treestore.TreeStore
		appVersion int
		watchers   map[int64]*localWatcher
		nextID     int64
		offline    bool
		bufferSize int
		dirty      atomic.Int32
	}

	localWatcher struct {
		id     int64
		s      *Local
		prefix string
		ch     chan Event
		closed bool
	}
)

func NewLocal(l lane.Lane, appVersion int) *Local {
	return &Local{
		l:          l,
		ts:         treestore.NewTreeStore(l.Derive(), appVersion),
		appVersion: appVersion,
		watchers:   map[int64]*localWatcher{},
		bufferSize: defaultWatchBuffer,
	}
}

// SetWatchBuffer changes the event buffer size of watchers opened afterward.
func (s *Local) SetWatchBuffer(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bufferSize = max(size, 1)
}

// SetOnline simulates loss and recovery of the store connection. Going
// offline drops every watcher and fails all operations until online again.
func (s *Local) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offline = !online
	if s.offline {
		s.l.Infof("store going offline, dropping %d watcher(s)", len(s.watchers))
		for _, w := range s.watchers {
			w.drop()
		}
	}
}

func (s *Local) checkUnlocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.offline {
		return ErrOffline
	}
	return nil
}

func (s *Local) readUnlocked(prefix string) map[string]string {
	entries := map[string]string{}

	matches := s.ts.GetMatchingKeyValues(prefixPattern(prefix), 0, math.MaxInt32)
	for _, m := range matches {
		path := tokenPathToPath(m.Key)
		if nspath.HasPrefix(path, prefix) {
			entries[path] = valueToString(m.CurrentValue)
		}
	}

	if nspath.Clean(prefix) != "" {
		val, _, valExists := s.ts.GetKeyValue(pathToStoreKey(prefix))
		if valExists {
			entries[nspath.Clean(prefix)] = valueToString(val)
		}
	}

	return entries
}

func (s *Local) Read(ctx context.Context, prefix string) (entries map[string]string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.checkUnlocked(ctx); err != nil {
		return
	}

	entries = s.readUnlocked(prefix)
	s.l.Tracef("read %d entries under %q", len(entries), prefix)
	return
}

func (s *Local) Watch(ctx context.Context, prefix string) (w Watcher, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.checkUnlocked(ctx); err != nil {
		return
	}

	s.nextID++
	lw := &localWatcher{
		id:     s.nextID,
		s:      s,
		prefix: nspath.Clean(prefix),
		ch:     make(chan Event, s.bufferSize),
	}
	s.watchers[lw.id] = lw
	lw.ch <- Event{Type: EventConnected}

	s.l.Tracef("watch %d opened on %q", lw.id, lw.prefix)
	return lw, nil
}

func (s *Local) Put(ctx context.Context, path, value string) error {
	if err := nspath.Validate(path); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, err.Error())
	}
	path = nspath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnlocked(ctx); err != nil {
		return err
	}

	s.ts.SetKeyValue(pathToStoreKey(path), []byte(value))
	s.dirty.Add(1)
	s.notifyUnlocked(Event{Type: EventPut, Path: path, Value: value})
	return nil
}

func (s *Local) Delete(ctx context.Context, path string) error {
	if err := nspath.Validate(path); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, err.Error())
	}
	path = nspath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnlocked(ctx); err != nil {
		return err
	}

	s.deleteUnlocked(path)
	return nil
}

func (s *Local) deleteUnlocked(path string) {
	removed, _ := s.ts.DeleteKeyWithValue(pathToStoreKey(path), true)
	if removed {
		s.dirty.Add(1)
		s.notifyUnlocked(Event{Type: EventDelete, Path: path})
	}
}

func (s *Local) DeletePrefix(ctx context.Context, prefix string) error {
	if err := nspath.Validate(prefix); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnlocked(ctx); err != nil {
		return err
	}

	entries := s.readUnlocked(prefix)
	paths := make([]string, 0, len(entries))
	for path := range entries {
		paths = append(paths, path)
	}

	// deepest first, so parents are cleaned after their children
	slices.SortFunc(paths, func(a, b string) int { return -strings.Compare(a, b) })
	for _, path := range paths {
		s.deleteUnlocked(path)
	}

	s.l.Tracef("purged %d entries under %q", len(paths), prefix)
	return nil
}

func (s *Local) notifyUnlocked(ev Event) {
	for _, w := range s.watchers {
		if !nspath.HasPrefix(ev.Path, w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			s.l.Infof("watch %d on %q overflowed, dropping it", w.id, w.prefix)
			w.drop()
		}
	}
}

// Saves the store to filename if anything changed since the last save.
func (s *Local) Save(filename string) error {
	if s.dirty.Swap(0) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.l.Tracef("saving store to %s", filename)
	if err := s.ts.Save(s.l, filename); err != nil {
		s.l.Errorf("failed to save store to %s: %s", filename, err.Error())
		return err
	}
	return nil
}

// Loads the store from filename, replacing the current content. Open
// watchers are dropped so their consumers read the new content again.
func (s *Local) Load(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.l.Tracef("loading store from %s", filename)
	ts := treestore.NewTreeStore(s.l.Derive(), s.appVersion)
	if err := ts.Load(s.l, filename); err != nil {
		s.l.Errorf("error loading %s: %s", filename, err.Error())
		return err
	}
	s.ts = ts
	s.dirty.Store(0)

	for _, w := range s.watchers {
		w.drop()
	}
	return nil
}

func (w *localWatcher) Events() <-chan Event {
	return w.ch
}

func (w *localWatcher) Cancel() {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if !w.closed {
		w.closed = true
		delete(w.s.watchers, w.id)
		close(w.ch)
		w.s.l.Tracef("watch %d cancelled", w.id)
	}
}

// Ends the stream from the store side. The disconnect event is delivered if
// there is buffer room; the closed channel signals the end either way.
func (w *localWatcher) drop() {
	if w.closed {
		return
	}
	select {
	case w.ch <- Event{Type: EventDisconnected}:
	default:
	}
	w.closed = true
	delete(w.s.watchers, w.id)
	close(w.ch)
}
