package mirror

import (
	"context"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/nspath"
)

func (m *Mirror) checkConnected() error {
	m.mu.RLock()
	closed := m.closed
	status := m.status
	m.mu.RUnlock()

	if closed || status == StatusOffline {
		return cnserr.New(cnserr.KindConnection, "not connected")
	}
	return nil
}

func (m *Mirror) checkWritable(path string) (string, error) {
	if err := m.checkConnected(); err != nil {
		return "", err
	}
	if err := nspath.Validate(path); err != nil {
		return "", cnserr.Wrap(cnserr.KindArgument, err, "invalid path")
	}
	path = nspath.Clean(path)
	if !nspath.HasPrefix(path, m.prefix) {
		return "", cnserr.New(cnserr.KindArgument, "%s is outside of namespace %s", path, m.prefix)
	}
	return path, nil
}

// Put writes a value to the store and waits for the acknowledgement. The
// mirror is not updated until the corresponding notification arrives.
func (m *Mirror) Put(ctx context.Context, path, value string) error {
	path, err := m.checkWritable(path)
	if err != nil {
		return err
	}
	if err = m.st.Put(ctx, path, value); err != nil {
		return cnserr.Wrap(cnserr.KindRemoteOperation, err, "put %s failed", path)
	}
	m.l.Tracef("put %s acknowledged", path)
	return nil
}

// Delete removes a value from the store.
func (m *Mirror) Delete(ctx context.Context, path string) error {
	path, err := m.checkWritable(path)
	if err != nil {
		return err
	}
	if err = m.st.Delete(ctx, path); err != nil {
		return cnserr.Wrap(cnserr.KindRemoteOperation, err, "delete %s failed", path)
	}
	m.l.Tracef("delete %s acknowledged", path)
	return nil
}

// Purge removes every value at or below prefix from the store.
func (m *Mirror) Purge(ctx context.Context, prefix string) error {
	prefix, err := m.checkWritable(prefix)
	if err != nil {
		return err
	}
	if err = m.st.DeletePrefix(ctx, prefix); err != nil {
		return cnserr.Wrap(cnserr.KindRemoteOperation, err, "purge %s failed", prefix)
	}
	m.l.Tracef("purge %s acknowledged", prefix)
	return nil
}

// Refresh re-reads the entries at or below prefix (the whole mirror when
// prefix is empty) and reconciles local state with them, announcing each
// difference as a put or delete. It returns the number of differences.
func (m *Mirror) Refresh(ctx context.Context, prefix string) (count int, err error) {
	if prefix == "" {
		prefix = m.prefix
	}
	if prefix == "" {
		err = m.checkConnected()
	} else {
		prefix, err = m.checkWritable(prefix)
	}
	if err != nil {
		return
	}

	fetched, err := m.st.Read(ctx, prefix)
	if err != nil {
		err = cnserr.Wrap(cnserr.KindRemoteOperation, err, "refresh of %s failed", prefix)
		return
	}

	m.mutate(func() []Change {
		if m.closed {
			return nil
		}

		changes := []Change{}
		for _, e := range nspath.SelectTree(m.entries, prefix) {
			if _, exists := fetched[e.Path]; !exists {
				delete(m.entries, e.Path)
				changes = append(changes, Change{Kind: ChangeDelete, Path: e.Path})
			}
		}
		for _, e := range nspath.SelectTree(fetched, prefix) {
			if cur, exists := m.entries[e.Path]; !exists || cur != e.Value {
				m.entries[e.Path] = e.Value
				changes = append(changes, Change{Kind: ChangePut, Path: e.Path, Value: e.Value})
			}
		}

		m.updates += int64(len(changes))
		count = len(changes)
		return changes
	})

	m.l.Tracef("refresh of %s found %d difference(s)", prefix, count)
	return
}
