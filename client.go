package cns_console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-lane"
)

const DefaultDialTimeout = 5 * time.Second

type (
	// Client sends statement lines to a console server. A connection lost
	// or abandoned by a cancelled context is redialed by the next Execute.
	Client struct {
		mu      sync.Mutex
		l       lane.Lane
		addr    string
		cxn     net.Conn
		inbound []byte
	}
)

// Dial connects to the server at addr (host:port).
func Dial(ctx context.Context, l lane.Lane, addr string) (c *Client, err error) {
	c = &Client{l: l, addr: addr}
	if err = c.connect(ctx); err != nil {
		c = nil
	}
	return
}

func (c *Client) connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: DefaultDialTimeout}
	cxn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return cnserr.Wrap(cnserr.KindConnection, err, "can't connect to %s", c.addr)
	}
	c.l.Tracef("connected to console server %s", c.addr)
	c.cxn = cxn
	c.inbound = nil
	return nil
}

func (c *Client) Addr() string {
	return c.addr
}

// Execute runs a statement line on the server. Statement failures are
// reported in resp.Error; err is for transport failures. Cancelling ctx
// drops the connection, which interrupts the statement on the server.
func (c *Client) Execute(ctx context.Context, command string) (resp interp.Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cxn == nil {
		if err = c.connect(ctx); err != nil {
			return
		}
	}

	packet, err := json.Marshal(interp.Request{Command: command})
	if err != nil {
		return
	}

	cxn := c.cxn
	stop := context.AfterFunc(ctx, func() {
		cxn.SetDeadline(time.Now())
	})
	defer stop()

	if err = writeFrame(c.cxn, packet); err != nil {
		err = c.fail(ctx, err)
		return
	}

	for {
		packet, length := parseFrame(c.inbound)
		if length < 0 {
			err = c.fail(ctx, errors.New("malformed response"))
			return
		}
		if length > 0 {
			c.inbound = c.inbound[length:]
			if err = json.Unmarshal(packet, &resp); err != nil {
				err = c.fail(ctx, err)
			}
			return
		}

		// buffer must be allocated for each read, because c.inbound may reference it
		buffer := make([]byte, 1024*8)
		n, readErr := c.cxn.Read(buffer)
		if readErr != nil {
			err = c.fail(ctx, readErr)
			return
		}
		c.inbound = append(c.inbound, buffer[0:n]...)
	}
}

// Closes the connection and translates err.
func (c *Client) fail(ctx context.Context, err error) error {
	c.cxn.Close()
	c.cxn = nil
	c.inbound = nil

	if ctx.Err() != nil {
		return interp.ErrInterrupted
	}
	if errors.Is(err, io.EOF) {
		return cnserr.New(cnserr.KindConnection, "server closed the connection")
	}
	return cnserr.Wrap(cnserr.KindConnection, err, "lost connection to %s", c.addr)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cxn == nil {
		return nil
	}
	err := c.cxn.Close()
	c.cxn = nil
	return err
}
