package session

import (
	"context"
	"errors"
	"testing"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/mirror"
	"github.com/jimsnab/go-cns-console/render"
	"github.com/jimsnab/go-cns-console/store/storetest"
	"github.com/jimsnab/go-lane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, seed map[string]string) (*Session, *storetest.Fake) {
	l := lane.NewTestingLane(context.Background())
	fake := storetest.New()
	fake.Seed(seed)

	cfg := config.Default()
	cfg.Prefix = "app"
	s, err := New(l, fake, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, fake
}

func TestLookupPrecedence(t *testing.T) {
	s, _ := newTestSession(t, map[string]string{
		"app/reads":  "from mirror",
		"app/name":   "n1",
		"app/prefix": "from mirror",
	})
	require.NoError(t, s.Connect(context.Background(), ""))

	t.Setenv("CNS_SESSION_TEST", "from env")
	t.Setenv("name", "from env")

	cases := map[string]string{
		"prefix":           "app",
		"indent":           "2",
		"reads":            "0",
		"name":             "n1",
		"app/name":         "n1",
		"CNS_SESSION_TEST": "from env",
	}
	for name, expected := range cases {
		v, found := s.Lookup(name)
		assert.True(t, found, name)
		assert.Equal(t, expected, v, name)
	}

	_, found := s.Lookup("CNS_SESSION_MISSING")
	assert.False(t, found)
}

func TestConnectDisconnect(t *testing.T) {
	s, _ := newTestSession(t, map[string]string{"app/a": "1"})

	_, err := s.Mirror()
	assert.True(t, cnserr.Is(err, cnserr.KindConnection))
	assert.True(t, cnserr.Is(s.Disconnect(), cnserr.KindConnection))

	var kinds []mirror.ChangeKind
	s.Subscribe(func(c mirror.Change) { kinds = append(kinds, c.Kind) })

	require.NoError(t, s.Connect(context.Background(), ""))
	assert.Equal(t, mirror.StatusOnline, s.Status())
	assert.Equal(t, map[string]string{"app/a": "1"}, s.Snapshot())

	require.NoError(t, s.Disconnect())
	assert.Equal(t, mirror.StatusOffline, s.Status())
	assert.Empty(t, s.Snapshot())

	assert.Equal(t, []mirror.ChangeKind{
		mirror.ChangeReset, mirror.ChangeStatus,
		mirror.ChangeReset, mirror.ChangeStatus,
	}, kinds)
}

func TestConnectFailureLeavesSessionOffline(t *testing.T) {
	s, fake := newTestSession(t, nil)
	fake.FailWatch(errors.New("refused"))

	err := s.Connect(context.Background(), "")
	assert.True(t, cnserr.Is(err, cnserr.KindConnection))
	assert.Equal(t, mirror.StatusOffline, s.Status())
}

func TestDegradedFlip(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.Connect(context.Background(), ""))

	var statuses []mirror.Status
	s.Subscribe(func(c mirror.Change) {
		if c.Kind == mirror.ChangeStatus {
			statuses = append(statuses, c.Status)
		}
	})

	s.Fail(cnserr.New(cnserr.KindArgument, "not remote"))
	assert.Equal(t, mirror.StatusOnline, s.Status())

	s.Fail(cnserr.New(cnserr.KindRemoteOperation, "timeout"))
	assert.Equal(t, mirror.StatusDegraded, s.Status())

	s.RemoteSucceeded(CounterWrites)
	assert.Equal(t, mirror.StatusOnline, s.Status())

	assert.Equal(t, []mirror.Status{mirror.StatusDegraded, mirror.StatusOnline}, statuses)
	assert.Equal(t, Stats{Writes: 1, Errors: 2}, s.Stats())

	s.ResetStats()
	assert.Equal(t, Stats{}, s.Stats())
}

func TestOptions(t *testing.T) {
	s, _ := newTestSession(t, nil)

	require.NoError(t, s.SetOption("indent", "12"))
	assert.Equal(t, 8, s.Options().Indent)

	require.NoError(t, s.SetOption("width", "5"))
	assert.Equal(t, render.MinWidth, s.Options().Width)

	require.NoError(t, s.SetOption("FORMAT", "table"))
	assert.Equal(t, render.FormatTable, s.Options().Format)

	assert.True(t, cnserr.Is(s.SetOption("format", "csv"), cnserr.KindFormat))
	assert.True(t, cnserr.Is(s.SetOption("indent", "x"), cnserr.KindTypeMismatch))
	assert.True(t, cnserr.Is(s.SetOption("nope", "1"), cnserr.KindArgument))
}

func TestHistory(t *testing.T) {
	s, _ := newTestSession(t, nil)
	s.AddHistory("ls")
	s.AddHistory("get a")
	assert.Equal(t, []string{"ls", "get a"}, s.History())
}

func TestBadConfig(t *testing.T) {
	l := lane.NewTestingLane(context.Background())

	cfg := config.Default()
	cfg.Options.Format = "csv"
	_, err := New(l, storetest.New(), cfg)
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))

	cfg = config.Default()
	cfg.Schema["a"] = "date"
	_, err = New(l, storetest.New(), cfg)
	assert.Error(t, err)
}
