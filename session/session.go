// Package session holds the state one console or dashboard works against:
// its mirror, configuration, display options, statistics and history.
package session

import (
	"context"
	"os"
	"slices"
	"sync"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/mirror"
	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-cns-console/schema"
	"github.com/jimsnab/go-cns-console/store"
	"github.com/jimsnab/go-lane"
	"github.com/oklog/ulid/v2"
)

type Counter int

const (
	CounterReads Counter = iota
	CounterWrites
	CounterUpdates
	CounterErrors
)

const maxHistory = 1000

type (
	Stats struct {
		Reads   int64
		Writes  int64
		Updates int64
		Errors  int64
	}

	Session struct {
		mu      sync.RWMutex
		l       lane.Lane
		id      string
		st      store.Store
		cfg     *config.Config
		schema  *schema.Schema
		opts    Options
		stats   Stats
		mirror  *mirror.Mirror
		unsub   func()
		history []string

		hmu     sync.Mutex
		subs    map[int]func(mirror.Change)
		nextSub int
	}
)

// New makes a disconnected session over st.
func New(l lane.Lane, st store.Store, cfg *config.Config) (s *Session, err error) {
	if cfg == nil {
		cfg = config.Default()
	}

	sch, err := schema.FromMap(cfg.Schema)
	if err != nil {
		return
	}

	opts, err := optionsFromConfig(cfg.Options)
	if err != nil {
		return
	}

	s = &Session{
		l:      l,
		id:     ulid.Make().String(),
		st:     st,
		cfg:    cfg,
		schema: sch,
		opts:   opts,
		subs:   map[int]func(mirror.Change){},
	}
	l.Tracef("session %s created", s.id)
	return
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Lane() lane.Lane {
	return s.l
}

func (s *Session) Store() store.Store {
	return s.st
}

func (s *Session) Schema() *schema.Schema {
	return s.schema
}

// Connect replaces any current mirror with a new one on prefix, or on the
// configured prefix when prefix is empty.
func (s *Session) Connect(ctx context.Context, prefix string) (err error) {
	if prefix == "" {
		prefix = s.ConfigValue("prefix")
	}

	s.closeMirror()

	resync := s.ConfigValue("resync") == "true"
	m, err := mirror.Connect(ctx, s.l, s.st, prefix, mirror.Options{Resync: resync})
	if err != nil {
		return
	}

	s.mu.Lock()
	s.mirror = m
	s.unsub = m.Subscribe(s.forward)
	s.mu.Unlock()

	s.forward(mirror.Change{Kind: mirror.ChangeReset})
	s.forward(mirror.Change{Kind: mirror.ChangeStatus, Status: mirror.StatusOnline})
	return
}

// Disconnect drops the mirror. Observers see an empty tree.
func (s *Session) Disconnect() error {
	if !s.closeMirror() {
		return cnserr.New(cnserr.KindConnection, "not connected")
	}
	s.forward(mirror.Change{Kind: mirror.ChangeReset})
	s.forward(mirror.Change{Kind: mirror.ChangeStatus, Status: mirror.StatusOffline})
	return nil
}

func (s *Session) closeMirror() bool {
	s.mu.Lock()
	m, unsub := s.mirror, s.unsub
	s.mirror, s.unsub = nil, nil
	s.mu.Unlock()

	if m == nil {
		return false
	}
	unsub()
	m.Close()
	return true
}

// Close releases the mirror and all subscriptions.
func (s *Session) Close() {
	s.closeMirror()

	s.hmu.Lock()
	s.subs = map[int]func(mirror.Change){}
	s.hmu.Unlock()
	s.l.Tracef("session %s closed", s.id)
}

// Mirror returns the live mirror or a connection error.
func (s *Session) Mirror() (*mirror.Mirror, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mirror == nil {
		return nil, cnserr.New(cnserr.KindConnection, "not connected")
	}
	return s.mirror, nil
}

func (s *Session) Status() mirror.Status {
	m, err := s.Mirror()
	if err != nil {
		return mirror.StatusOffline
	}
	return m.Status()
}

// Snapshot copies the mirrored entries, or nothing when disconnected.
func (s *Session) Snapshot() map[string]string {
	m, err := s.Mirror()
	if err != nil {
		return map[string]string{}
	}
	return m.Snapshot()
}

// Subscribe follows changes of whichever mirror the session holds, across
// reconnects. A reset is sent whenever the mirror is replaced.
func (s *Session) Subscribe(fn func(mirror.Change)) (unsubscribe func()) {
	s.hmu.Lock()
	defer s.hmu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn

	return func() {
		s.hmu.Lock()
		defer s.hmu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) forward(c mirror.Change) {
	s.hmu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(mirror.Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.hmu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

//
// Configuration
//

func (s *Session) ConfigValues() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Values()
}

func (s *Session) ConfigValue(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.cfg.Get(name)
	return v
}

func (s *Session) SetConfig(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Set(name, value)
}

//
// Statistics
//

func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (st Stats) Values() map[string]string {
	return map[string]string{
		"reads":   itoa(st.Reads),
		"writes":  itoa(st.Writes),
		"updates": itoa(st.Updates),
		"errors":  itoa(st.Errors),
	}
}

func (s *Session) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
}

func (s *Session) Count(c Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c {
	case CounterReads:
		s.stats.Reads++
	case CounterWrites:
		s.stats.Writes++
	case CounterUpdates:
		s.stats.Updates++
	case CounterErrors:
		s.stats.Errors++
	}
}

// Fail counts a failed operation. A failed remote operation also marks the
// connection degraded.
func (s *Session) Fail(err error) {
	s.Count(CounterErrors)

	if !cnserr.Is(err, cnserr.KindRemoteOperation) {
		return
	}
	if m, merr := s.Mirror(); merr == nil && m.Status() == mirror.StatusOnline {
		s.l.Infof("session %s degraded: %s", s.id, err)
		m.SetStatus(mirror.StatusDegraded)
	}
}

// RemoteSucceeded counts a successful remote operation and clears a degraded
// connection status.
func (s *Session) RemoteSucceeded(c Counter) {
	s.Count(c)

	if m, err := s.Mirror(); err == nil && m.Status() == mirror.StatusDegraded {
		s.l.Infof("session %s back online", s.id)
		m.SetStatus(mirror.StatusOnline)
	}
}

//
// History
//

func (s *Session) AddHistory(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, line)
	if len(s.history) > maxHistory {
		s.history = slices.Clone(s.history[len(s.history)-maxHistory:])
	}
}

// History returns the entered lines, oldest first.
func (s *Session) History() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

//
// Variables
//

// Lookup resolves a variable name against configuration, options,
// statistics, the mirror and the process environment, in that order.
// Mirror names are tried as given and then relative to the mirror prefix.
func (s *Session) Lookup(name string) (value string, found bool) {
	if value, found = s.ConfigValues()[name]; found {
		return
	}
	if value, found = s.OptionValues()[name]; found {
		return
	}
	if value, found = s.Stats().Values()[name]; found {
		return
	}

	if m, err := s.Mirror(); err == nil {
		if nspath.Validate(name) == nil {
			if value, found = m.Lookup(name); found {
				return
			}
			if value, found = m.Lookup(nspath.Join(m.Prefix(), name)); found {
				return
			}
		}
	}

	return os.LookupEnv(name)
}
