// Package cns_console serves console statements to remote clients over a
// framed TCP protocol.
package cns_console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-lane"
)

type (
	mainEngine struct {
		mu          sync.Mutex
		started     bool
		l           lane.Lane
		s           *session.Session
		saver       *Saver
		server      net.Listener
		canExit     chan struct{}
		terminating bool
		port        int
		iface       string
		dispatcher  *cmdDispatcher
		directCs    *clientState

		clientsMu sync.Mutex
		clients   map[int64]*clientState
		clientID  int64
	}

	CnsConsoleServer interface {
		// Starts a socket server using the specified network interface and port.
		//
		// If endpoint is "", the server will listen on all network interfaces.
		// If port is 0, the server will listen on port 6771.
		//
		// Each request is a JSON envelope sent as:
		//
		// <length> {"command": "<statement line>"}
		//
		// Where <length> is the big-endian 32-bit length of the JSON text. The
		// statement line may hold several statements separated with ';'.
		//
		// The response is sent the same way:
		//
		// <length> {"response": "<output>", "format": "<format>", "error": "<message>"}
		//
		// error is omitted when the line succeeded. Each connection has its
		// own interpreter over the shared session, and closing a connection
		// interrupts the statement it is running.
		StartServer(endpoint string, port int) error

		// Initiates server termination, if it is running.
		StopServer() error

		// Waits for the server to stop
		WaitForTermination()

		// Returns the server address
		ServerAddr() string

		// Returns the number of connected clients
		Clients() int

		// Runs a request without a socket
		Dispatch(ctx context.Context, req interp.Request) (resp interp.Response, err error)
	}
)

// NewCnsConsoleServer serves statements against s. If saver is not nil, it
// is started with the server and stopped, with a final save, when the
// server terminates.
func NewCnsConsoleServer(l lane.Lane, s *session.Session, saver *Saver) CnsConsoleServer {
	eng := mainEngine{
		l:       l,
		s:       s,
		saver:   saver,
		clients: map[int64]*clientState{},
	}
	return &eng
}

func (eng *mainEngine) StartServer(endpoint string, port int) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.started {
		return fmt.Errorf("already started")
	}

	if port != 0 {
		eng.port = port
	} else {
		eng.port = config.DefaultServerPort
	}

	if endpoint != "" {
		eng.iface = endpoint
	}

	// launch termination monitiors
	eng.canExit = make(chan struct{})

	// launch periodic save goroutine
	if eng.saver != nil {
		eng.saver.Start()
	}

	// start accepting connections and processing them
	if err := eng.startServer(); err != nil {
		if eng.saver != nil {
			eng.saver.Stop()
		}
		return err
	}
	eng.started = true

	return nil
}

func (eng *mainEngine) StopServer() error {
	// ensure only one termination
	eng.mu.Lock()
	if !eng.started {
		eng.mu.Unlock()
		return fmt.Errorf("not started")
	}

	isTerminating := eng.terminating
	eng.terminating = true
	eng.mu.Unlock()

	if !isTerminating {
		go func() { eng.onTerminate() }()
	}

	return nil
}

func (eng *mainEngine) onTerminate() {
	if eng.server != nil {
		// close the server and wait for all active connections to finish
		eng.l.Tracef("closing server")
		eng.server.Close()

		eng.l.Infof("waiting for any open request connections to complete")
		eng.requestAllCxnClose()
		eng.waitForAllCxnClose()
		eng.l.Infof("termination of %s completed", eng.server.Addr().String())
	}

	eng.mu.Lock()
	if eng.directCs != nil {
		eng.directCs.close()
	}
	eng.mu.Unlock()

	// stop the periodic saver (if running)
	if eng.saver != nil {
		eng.saver.Stop()
	}

	eng.canExit <- struct{}{}
}

func (eng *mainEngine) startServer() error {
	// establish socket service
	var err error

	if eng.iface == "" {
		eng.iface = fmt.Sprintf(":%d", eng.port)
	} else {
		eng.iface = fmt.Sprintf("%s:%d", eng.iface, eng.port)
	}

	eng.server, err = net.Listen("tcp", eng.iface)
	if err != nil {
		eng.l.Errorf("error listening: %s", err.Error())
		return err
	}
	eng.l.Infof("listening on %s", eng.server.Addr().String())

	eng.dispatcher = newCmdDispatcher(eng.port, eng.iface, eng.s)

	go func() {
		// accept connections and process commands
		for {
			connection, err := eng.server.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					eng.l.Errorf("accept error: %s", err)
				}
				break
			}
			eng.l.Infof("client connected: %s", connection.RemoteAddr().String())
			newClientCxn(eng, connection)
		}
	}()

	return nil
}

func (eng *mainEngine) WaitForTermination() {
	// wait for server to quiesque
	<-eng.canExit
	eng.l.Info("finished serving requests")
}

func (eng *mainEngine) ServerAddr() string {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.server == nil {
		return ""
	}

	return eng.server.Addr().String()
}

func (eng *mainEngine) Dispatch(ctx context.Context, req interp.Request) (resp interp.Response, err error) {
	eng.mu.Lock()
	if eng.server == nil || eng.dispatcher == nil || eng.terminating {
		eng.mu.Unlock()
		err = errors.New("server not running")
		return
	}

	if eng.directCs == nil {
		eng.directCs = eng.newClientState(nil)
	}
	cs := eng.directCs
	eng.mu.Unlock()

	resp = cs.in.Dispatch(ctx, req)
	return
}
