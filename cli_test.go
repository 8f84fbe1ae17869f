package cns_console

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-cns-console/store"
	"github.com/jimsnab/go-lane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPort = 6779

type (
	testClient struct {
		l       lane.Lane
		cxn     net.Conn
		inbound []byte
	}
)

func testSession(t *testing.T, l lane.Lane, st *store.Local) *session.Session {
	cfg := config.Default()
	cfg.Prefix = "net"
	s, err := session.New(l, st, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background(), ""))
	t.Cleanup(s.Close)
	return s
}

func testServer(t *testing.T) (srv CnsConsoleServer, st *store.Local) {
	l := lane.NewTestingLane(context.Background())
	//l = lane.NewLogLaneWithCR(context.Background())
	st = store.NewLocal(l, session.AppVersion)
	srv = NewCnsConsoleServer(l, testSession(t, l, st), nil)
	require.NoError(t, srv.StartServer("localhost", testPort))

	t.Cleanup(func() {
		srv.StopServer()
		srv.WaitForTermination()
	})
	return
}

func testSetup(t *testing.T) (tc *testClient, st *store.Local) {
	srv, st := testServer(t)

	cxn, err := net.Dial("tcp", srv.ServerAddr())
	require.NoError(t, err)
	t.Cleanup(func() { cxn.Close() })

	tc = &testClient{
		l:   lane.NewTestingLane(context.Background()),
		cxn: cxn,
	}
	return
}

// Sends a raw framed packet to the console server and returns the decoded
// response envelope.
func (tc *testClient) rawPacket(t *testing.T, packet []byte) map[string]any {
	tc.send(t, packet)
	return tc.readResponse(t)
}

func (tc *testClient) send(t *testing.T, packets ...[]byte) {
	var req []byte
	for _, packet := range packets {
		frame := make([]byte, len(packet)+4)
		binary.BigEndian.PutUint32(frame, uint32(len(packet)))
		copy(frame[4:], packet)
		req = append(req, frame...)
	}

	n, err := tc.cxn.Write(req)
	require.NoError(t, err)
	require.Equal(t, len(req), n)
}

func (tc *testClient) readResponse(t *testing.T) (response map[string]any) {
	for {
		if packet, length := parseFrame(tc.inbound); length > 0 {
			tc.inbound = tc.inbound[length:]
			require.NoError(t, json.Unmarshal(packet, &response))
			return
		}

		// buffer must be allocated for each read, because tc.inbound slice is referencing it
		buffer := make([]byte, 1024*8)

		// put a time limit on an api
		tc.cxn.SetReadDeadline(time.Now().Add(20 * time.Second))
		n, err := tc.cxn.Read(buffer)
		if err != nil {
			if !errors.Is(err, io.EOF) && !strings.HasSuffix(err.Error(), "use of closed network connection") {
				tc.l.Errorf("read error from %s: %s", tc.cxn.RemoteAddr().String(), err.Error())
			}
			t.Fatal(err)
			return
		}

		tc.inbound = append(tc.inbound, buffer[0:n]...)
		tc.l.Tracef("received %d bytes from server", len(tc.inbound))
	}
}

func request(t *testing.T, command string) []byte {
	packet, err := json.Marshal(interp.Request{Command: command})
	require.NoError(t, err)
	return packet
}

func (tc *testClient) rawCommand(t *testing.T, command string) map[string]any {
	return tc.rawPacket(t, request(t, command))
}

func TestRoundTrip(t *testing.T) {
	tc, st := testSetup(t)

	res := tc.rawCommand(t, "put net/a 1")
	_, hasError := res["error"]
	assert.False(t, hasError)

	// the mirror catches up when the watch notification arrives
	require.Eventually(t, func() bool {
		res = tc.rawCommand(t, "get net/a")
		return res["response"] == "1"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "text", res["format"])

	entries, err := st.Read(context.Background(), "net")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"net/a": "1"}, entries)

	res = tc.rawCommand(t, "json net")
	assert.Equal(t, "json", res["format"])
	assert.Contains(t, res["response"], `"a"`)

	res = tc.rawCommand(t, "bogus")
	assert.Contains(t, res["error"], "unknown command")
}

func TestMalformedRequest(t *testing.T) {
	tc, _ := testSetup(t)

	res := tc.rawPacket(t, []byte("get net/a"))
	assert.Contains(t, res["error"], "malformed request")

	// the connection survives
	res = tc.rawCommand(t, "echo ok")
	assert.Equal(t, "ok", res["response"])
}

func TestPipelinedRequests(t *testing.T) {
	tc, _ := testSetup(t)

	tc.send(t, request(t, "echo one"), request(t, "pause 20; echo two"), request(t, "echo three"))

	for _, expected := range []string{"one", "two", "three"} {
		res := tc.readResponse(t)
		assert.Equal(t, expected, res["response"])
	}
}

func TestClientsShareSession(t *testing.T) {
	srv, _ := testServer(t)
	ctx := context.Background()
	l := lane.NewTestingLane(ctx)

	c1, err := Dial(ctx, l, srv.ServerAddr())
	require.NoError(t, err)
	defer c1.Close()
	c2, err := Dial(ctx, l, srv.ServerAddr())
	require.NoError(t, err)
	defer c2.Close()

	resp, err := c1.Execute(ctx, "put net/shared yes")
	require.NoError(t, err)
	assert.Empty(t, resp.Error)

	require.Eventually(t, func() bool {
		resp, err = c2.Execute(ctx, "get net/shared")
		return err == nil && resp.Response == "yes"
	}, 5*time.Second, 10*time.Millisecond)

	resp, err = c2.Execute(ctx, "get net/missing")
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "no such property")

	require.Eventually(t, func() bool { return srv.Clients() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestCloseInterruptsStatement(t *testing.T) {
	srv, _ := testServer(t)
	l := lane.NewTestingLane(context.Background())

	c, err := Dial(context.Background(), l, srv.ServerAddr())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Execute(ctx, "pause 60000")
	assert.ErrorIs(t, err, interp.ErrInterrupted)
	assert.Less(t, time.Since(start), 10*time.Second)

	require.Eventually(t, func() bool { return srv.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)

	// the next statement redials
	resp, err := c.Execute(context.Background(), "echo back")
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Response)
}

func TestDialFailure(t *testing.T) {
	l := lane.NewTestingLane(context.Background())
	_, err := Dial(context.Background(), l, "localhost:1")
	assert.Error(t, err)
}

func TestDispatch(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := srv.Dispatch(context.Background(), interp.Request{Command: "put net/d 4"})
	require.NoError(t, err)
	assert.Empty(t, resp.Error)

	require.Eventually(t, func() bool {
		resp, err = srv.Dispatch(context.Background(), interp.Request{Command: "get net/d default"})
		return err == nil && resp.Response == "4"
	}, 5*time.Second, 10*time.Millisecond)

	l := lane.NewTestingLane(context.Background())
	stopped := NewCnsConsoleServer(l, nil, nil)
	_, err = stopped.Dispatch(context.Background(), interp.Request{Command: "echo"})
	assert.Error(t, err)
}

func TestSaverPersists(t *testing.T) {
	l := lane.NewTestingLane(context.Background())
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "cns.db")

	st := store.NewLocal(l, session.AppVersion)
	sv := NewSaver(l, st, filename, 10*time.Millisecond)
	sv.Start()
	require.NoError(t, st.Put(ctx, "net/kept", "value"))
	sv.Stop()

	reloaded := store.NewLocal(l, session.AppVersion)
	require.NoError(t, reloaded.Load(filename))
	entries, err := reloaded.Read(ctx, "net")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"net/kept": "value"}, entries)
}

func TestServerSavesOnStop(t *testing.T) {
	l := lane.NewTestingLane(context.Background())
	filename := filepath.Join(t.TempDir(), "cns.db")

	st := store.NewLocal(l, session.AppVersion)
	srv := NewCnsConsoleServer(l, testSession(t, l, st), NewSaver(l, st, filename, time.Hour))
	require.NoError(t, srv.StartServer("localhost", testPort))

	resp, err := srv.Dispatch(context.Background(), interp.Request{Command: "put net/x 1"})
	require.NoError(t, err)
	require.Empty(t, resp.Error)

	require.NoError(t, srv.StopServer())
	srv.WaitForTermination()

	reloaded := store.NewLocal(l, session.AppVersion)
	require.NoError(t, reloaded.Load(filename))
	entries, err := reloaded.Read(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"net/x": "1"}, entries)
}
