// Package mirror keeps a local, eventually consistent copy of a namespace
// subtree held in a remote store.
//
// A Mirror is seeded by one bulk read and then follows the store's change
// stream. All mutations go through one mutex, and change notifications are
// delivered in mutation order. The write path never touches local state: a
// written value appears only once the store reports it back.
package mirror

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-cns-console/store"
	"github.com/jimsnab/go-lane"
)

const (
	StatusOffline Status = iota
	StatusOnline
	StatusDegraded
)

const (
	ChangePut ChangeKind = iota
	ChangeDelete
	ChangeReset
	ChangeStatus
)

const maxResyncDelay = 30 * time.Second

type (
	Status     int
	ChangeKind int

	// Change describes one mirror mutation. A reset means the whole tree was
	// replaced (or cleared) and consumers must re-render from scratch.
	Change struct {
		Kind   ChangeKind
		Path   string
		Value  string
		Status Status
	}

	Options struct {
		// Resync re-reads the namespace and reopens the watch after the store
		// drops the change stream.
		Resync      bool
		ResyncDelay time.Duration
	}

	Mirror struct {
		mu      sync.RWMutex
		l       lane.Lane
		st      store.Store
		prefix  string
		opts    Options
		entries map[string]string
		status  Status
		updates int64
		closed  bool
		watcher store.Watcher
		cancel  context.CancelFunc
		done    chan struct{}

		smu     sync.Mutex
		subs    map[int]func(Change)
		nextSub int

		// held across mutation and delivery; always taken before mu
		nmu sync.Mutex
	}
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusDegraded:
		return "degraded"
	default:
		return "offline"
	}
}

func (k ChangeKind) String() string {
	switch k {
	case ChangePut:
		return "put"
	case ChangeDelete:
		return "delete"
	case ChangeReset:
		return "reset"
	default:
		return "status"
	}
}

// New makes an empty, offline mirror for prefix. Use Connect for a live one.
func New(l lane.Lane, st store.Store, prefix string, opts Options) *Mirror {
	if opts.ResyncDelay <= 0 {
		opts.ResyncDelay = 500 * time.Millisecond
	}
	return &Mirror{
		l:       l,
		st:      st,
		prefix:  nspath.Clean(prefix),
		opts:    opts,
		entries: map[string]string{},
		subs:    map[int]func(Change){},
	}
}

// Connect seeds a mirror from a bulk read of prefix and starts following the
// change stream. If either step fails no mirror is returned.
func Connect(ctx context.Context, l lane.Lane, st store.Store, prefix string, opts Options) (m *Mirror, err error) {
	m = New(l, st, prefix, opts)

	entries, w, err := m.open(ctx)
	if err != nil {
		m = nil
		return
	}

	m.entries = entries
	m.status = StatusOnline
	m.watcher = w

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, w)

	l.Infof("mirror connected to %q with %d entries", m.prefix, len(entries))
	return
}

func (m *Mirror) open(ctx context.Context) (entries map[string]string, w store.Watcher, err error) {
	if entries, err = m.st.Read(ctx, m.prefix); err != nil {
		err = cnserr.Wrap(cnserr.KindConnection, err, "bulk read of %q failed", m.prefix)
		return
	}

	if w, err = m.st.Watch(ctx, m.prefix); err != nil {
		err = cnserr.Wrap(cnserr.KindConnection, cnserr.Wrap(cnserr.KindWatch, err, "watch on %q failed", m.prefix), "cannot follow %q", m.prefix)
		entries = nil
		return
	}
	return
}

func (m *Mirror) run(ctx context.Context, w store.Watcher) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events():
			if ctx.Err() != nil {
				// cancelled while the event was in flight
				return
			}

			if !ok || ev.Type == store.EventDisconnected {
				m.l.Infof("change stream for %q ended", m.prefix)
				m.OnDisconnect()
				if !m.opts.Resync {
					return
				}
				if w = m.resync(ctx); w == nil {
					return
				}
				continue
			}

			m.apply(ev)
		}
	}
}

func (m *Mirror) apply(ev store.Event) {
	switch ev.Type {
	case store.EventPut:
		if err := m.OnPut(ev.Path, ev.Value); err != nil {
			m.l.Errorf("discarding put notification: %s", err)
		}
	case store.EventDelete:
		if err := m.OnDelete(ev.Path); err != nil {
			m.l.Errorf("discarding delete notification: %s", err)
		}
	case store.EventConnected:
		m.SetStatus(StatusOnline)
	}
}

func (m *Mirror) resync(ctx context.Context) store.Watcher {
	delay := m.opts.ResyncDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		entries, w, err := m.open(ctx)
		if err != nil {
			m.l.Debugf("resync of %q failed: %s", m.prefix, err)
			delay = min(delay*2, maxResyncDelay)
			continue
		}

		installed := false
		m.mutate(func() []Change {
			if m.closed {
				return nil
			}
			m.entries = entries
			m.status = StatusOnline
			m.watcher = w
			m.updates++
			installed = true
			return []Change{{Kind: ChangeReset, Status: StatusOnline}}
		})
		if !installed {
			w.Cancel()
			return nil
		}

		m.l.Infof("mirror resynchronized %q with %d entries", m.prefix, len(entries))
		return w
	}
}

// Runs fn under the write lock, then delivers the changes it returns. Delivery
// order matches mutation order because nmu is held across both steps.
func (m *Mirror) mutate(fn func() []Change) {
	m.nmu.Lock()
	defer m.nmu.Unlock()

	m.mu.Lock()
	changes := fn()
	m.mu.Unlock()

	if len(changes) == 0 {
		return
	}

	m.smu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.smu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Subscribe registers fn for change notifications. Subscribers run on the
// goroutine that applied the change and must not mutate the mirror.
func (m *Mirror) Subscribe(fn func(Change)) (unsubscribe func()) {
	m.smu.Lock()
	defer m.smu.Unlock()

	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn

	return func() {
		m.smu.Lock()
		defer m.smu.Unlock()
		delete(m.subs, id)
	}
}

// OnPut applies a put notification. Paths outside the mirrored prefix are
// ignored.
func (m *Mirror) OnPut(path, value string) error {
	if err := nspath.Validate(path); err != nil {
		return cnserr.Wrap(cnserr.KindArgument, err, "bad put notification")
	}
	path = nspath.Clean(path)

	m.mutate(func() []Change {
		if m.closed || !nspath.HasPrefix(path, m.prefix) {
			return nil
		}
		m.entries[path] = value
		m.updates++
		return []Change{{Kind: ChangePut, Path: path, Value: value}}
	})
	return nil
}

// OnDelete applies a delete notification. Deleting an absent path changes
// nothing but is still counted and announced.
func (m *Mirror) OnDelete(path string) error {
	if err := nspath.Validate(path); err != nil {
		return cnserr.Wrap(cnserr.KindArgument, err, "bad delete notification")
	}
	path = nspath.Clean(path)

	m.mutate(func() []Change {
		if m.closed || !nspath.HasPrefix(path, m.prefix) {
			return nil
		}
		delete(m.entries, path)
		m.updates++
		return []Change{{Kind: ChangeDelete, Path: path}}
	})
	return nil
}

// OnDisconnect discards every entry and goes offline.
func (m *Mirror) OnDisconnect() {
	m.mutate(func() []Change {
		if m.closed {
			return nil
		}
		m.entries = map[string]string{}
		m.status = StatusOffline
		return []Change{{Kind: ChangeReset, Status: StatusOffline}}
	})
}

// SetStatus changes the connection status, announcing real changes.
func (m *Mirror) SetStatus(status Status) {
	m.mutate(func() []Change {
		if m.closed || m.status == status {
			return nil
		}
		m.status = status
		return []Change{{Kind: ChangeStatus, Status: status}}
	})
}

// Close stops following the change stream. No notification is applied or
// delivered after Close returns. Do not call it from a subscriber.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.entries = map[string]string{}
	m.status = StatusOffline
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if w != nil {
		w.Cancel()
	}
	if m.done != nil {
		<-m.done
	}

	m.l.Tracef("mirror of %q closed", m.prefix)
}

func (m *Mirror) Prefix() string {
	return m.prefix
}

func (m *Mirror) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Updates returns the number of notifications applied.
func (m *Mirror) Updates() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get returns the mirrored value of path, or def if there is none.
func (m *Mirror) Get(path, def string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, exists := m.entries[nspath.Clean(path)]; exists {
		return v
	}
	return def
}

// Lookup returns the mirrored value of path and whether it exists.
func (m *Mirror) Lookup(path string) (value string, exists bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists = m.entries[nspath.Clean(path)]
	return
}

// Select returns the entries matching pattern, ordered by path.
func (m *Mirror) Select(pattern string) []nspath.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nspath.Select(m.entries, pattern)
}

// SelectTree returns the entries matching pattern or lying below a match,
// ordered by path.
func (m *Mirror) SelectTree(pattern string) []nspath.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nspath.SelectTree(m.entries, pattern)
}

// Snapshot returns a copy of every mirrored entry.
func (m *Mirror) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.entries)
}
