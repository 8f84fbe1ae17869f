package cns_console

import (
	"context"
	"io"
	"time"

	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-lane"
)

type (
	// clientState holds the interpreter of one client. Every client shares
	// the engine's session, but has its own output format and monitor.
	clientState struct {
		l      lane.Lane
		id     int64
		client *clientCxn
		disp   *cmdDispatcher
		in     *interp.Interp
	}
)

func (eng *mainEngine) newClientState(client *clientCxn) *clientState {
	cs := &clientState{
		l:      eng.l,
		client: client,
		disp:   eng.dispatcher,
	}
	cs.in = interp.New(eng.l, eng.s, io.Discard)

	eng.clientsMu.Lock()
	defer eng.clientsMu.Unlock()
	eng.clientID++
	cs.id = eng.clientID
	if client != nil {
		eng.clients[cs.id] = cs
	}

	return cs
}

func (cs *clientState) dispatch(ctx context.Context, packet []byte) (output []byte, err error) {
	return cs.disp.dispatchHandler(ctx, cs.l, cs, packet)
}

func (cs *clientState) close() {
	cs.in.Close()
}

func (eng *mainEngine) unregister(id int64) {
	eng.clientsMu.Lock()
	defer eng.clientsMu.Unlock()

	delete(eng.clients, id)
}

func (eng *mainEngine) isClientActive() bool {
	eng.clientsMu.Lock()
	defer eng.clientsMu.Unlock()

	return len(eng.clients) > 0
}

func (eng *mainEngine) processAllClients(op func(id int64, cs *clientState)) {
	eng.clientsMu.Lock()
	defer eng.clientsMu.Unlock()

	for id, cs := range eng.clients {
		if !cs.client.IsCloseRequested() {
			op(id, cs)
		}
	}
}

func (eng *mainEngine) requestAllCxnClose() {
	eng.processAllClients(func(id int64, cs *clientState) {
		cs.client.RequestClose()
	})
}

func (eng *mainEngine) waitForAllCxnClose() {
	for {
		if !eng.isClientActive() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Clients returns the number of connected clients.
func (eng *mainEngine) Clients() int {
	eng.clientsMu.Lock()
	defer eng.clientsMu.Unlock()
	return len(eng.clients)
}
