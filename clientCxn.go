package cns_console

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

type cxnState int

const (
	csNone cxnState = iota
	csInitialize
	csWaitForCommand
	csDispatchCommand
	csTerminate
)

type (
	clientStateEvent struct {
		newState  cxnState
		eventData any
	}

	// clientCxn moves a socket through its states. Requests are framed by
	// a reader goroutine, and processed one at a time by run(). Losing the
	// socket cancels the context of the statement in flight.
	clientCxn struct {
		mu          sync.Mutex
		eng         *mainEngine
		cxn         net.Conn
		cs          *clientState
		socketState cxnState
		csceCh      chan *clientStateEvent
		requests    chan []byte
		inbound     []byte
		started     time.Time
		closing     bool
		ctx         context.Context
		cancel      context.CancelFunc
	}
)

func newClientCxn(eng *mainEngine, cxn net.Conn) *clientCxn {
	ctx, cancel := context.WithCancel(context.Background())
	cc := &clientCxn{
		eng:         eng,
		cxn:         cxn,
		started:     time.Now(),
		socketState: csNone,
		csceCh:      make(chan *clientStateEvent, 3),
		requests:    make(chan []byte, 16),
		ctx:         ctx,
		cancel:      cancel,
	}
	cc.cs = eng.newClientState(cc)

	cc.queueStateChange(csInitialize, nil)
	go cc.run()
	return cc
}

func (cc *clientCxn) queueStateChange(newState cxnState, eventData any) {
	cc.csceCh <- &clientStateEvent{newState: newState, eventData: eventData}
}

// RequestClose ends the connection, cancelling any statement in progress.
func (cc *clientCxn) RequestClose() {
	cc.mu.Lock()
	cc.closing = true
	cc.mu.Unlock()

	cc.cancel()
	cc.cxn.Close()
}

func (cc *clientCxn) IsCloseRequested() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.closing
}

func (cc *clientCxn) run() {
	for {
		event := <-cc.csceCh

		cc.socketState = event.newState
		switch cc.socketState {
		case csInitialize:
			cc.onInitialize()
		case csTerminate:
			cc.onTerminate()
			cc.cs.l.Tracef("client %d at %s terminated", cc.cs.id, cc.ClientAddr())
			return
		case csWaitForCommand:
			if cc.IsCloseRequested() {
				cc.queueStateChange(csTerminate, nil)
			} else {
				cc.onWaitForCommand()
			}
		case csDispatchCommand:
			cc.onDispatchCommand(event.eventData.([]byte))
		}
	}
}

func (cc *clientCxn) onTerminate() {
	cc.cancel()
	cc.cxn.Close()
	cc.cs.close()
	cc.eng.unregister(cc.cs.id)
}

func (cc *clientCxn) onInitialize() {
	go cc.readLoop()
	cc.queueStateChange(csWaitForCommand, nil)
}

func (cc *clientCxn) onWaitForCommand() {
	if cc.ctx.Err() != nil {
		cc.queueStateChange(csTerminate, nil)
		return
	}

	select {
	case <-cc.ctx.Done():
		cc.queueStateChange(csTerminate, nil)
	case packet := <-cc.requests:
		cc.queueStateChange(csDispatchCommand, packet)
	}
}

func (cc *clientCxn) readLoop() {
	defer cc.cancel()

	for {
		// each read gets its own buffer because cc.inbound may reference it
		buffer := make([]byte, 1024*8)
		n, err := cc.cxn.Read(buffer)
		if err != nil {
			if errors.Is(err, io.EOF) {
				cc.cs.l.Infof("client disconnected: %s", cc.ClientAddr())
			} else if !cc.IsCloseRequested() {
				cc.cs.l.Debugf("read error from %s: %s", cc.ClientAddr(), err)
			}
			return
		}

		if cc.inbound == nil {
			cc.inbound = buffer[0:n]
		} else {
			cc.inbound = append(cc.inbound, buffer[0:n]...)
		}

		cc.cs.l.Tracef("received %d bytes of command data from client", len(cc.inbound))

		for {
			packet, length := parseFrame(cc.inbound)
			if length == 0 {
				break
			}
			if length < 0 {
				cc.cs.l.Infof("malformed request sent from %s - terminating", cc.ClientAddr())
				return
			}
			cc.inbound = cc.inbound[length:]

			select {
			case cc.requests <- packet:
			case <-cc.ctx.Done():
				return
			}
		}
	}
}

func (cc *clientCxn) onDispatchCommand(packet []byte) {
	go func() {
		response, err := cc.cs.dispatch(cc.ctx, packet)
		if err != nil {
			cc.cs.l.Debugf("dispatch error: %s", err)
			cc.RequestClose()
			cc.queueStateChange(csWaitForCommand, nil)
			return
		}

		if err = writeFrame(cc.cxn, response); err != nil {
			if !cc.IsCloseRequested() {
				cc.cs.l.Debugf("write error: %s", err)
			}
			cc.RequestClose()
		} else {
			cc.cs.l.Tracef("wrote %d bytes", len(response)+4)
		}
		cc.queueStateChange(csWaitForCommand, nil)
	}()
}

func (cc *clientCxn) ServerAddr() string {
	return cc.cxn.LocalAddr().String()
}

func (cc *clientCxn) ClientAddr() string {
	return cc.cxn.RemoteAddr().String()
}
