package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-lane"
)

const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"

	DefaultWriteTimeout = 5 * time.Second
)

type (
	// Dashboard serves dashboard consumers over websockets. Each socket
	// receives a full snapshot on join and diffs afterward, and may send
	// command requests that run on the dashboard interpreter.
	Dashboard struct {
		l            lane.Lane
		b            *Broadcaster
		in           *interp.Interp
		upgrader     websocket.Upgrader
		WriteTimeout time.Duration
	}

	wsConsumer struct {
		mu           sync.Mutex
		ws           *websocket.Conn
		binary       bool
		writeTimeout time.Duration
	}
)

// NewDashboard serves b's payloads and runs socket requests on in, which
// should be an interpreter over the broadcaster's session.
func NewDashboard(l lane.Lane, b *Broadcaster, in *interp.Interp) *Dashboard {
	return &Dashboard{
		l:  l,
		b:  b,
		in: in,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		WriteTimeout: DefaultWriteTimeout,
	}
}

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	encoding := r.URL.Query().Get("encoding")
	if encoding == "" {
		encoding = EncodingJSON
	}
	if encoding != EncodingJSON && encoding != EncodingCBOR {
		http.Error(w, "unsupported encoding: "+encoding, http.StatusBadRequest)
		return
	}

	ws, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.l.Errorf("dashboard upgrade failed: %s", err)
		return
	}
	defer ws.Close()

	c := &wsConsumer{ws: ws, binary: encoding == EncodingCBOR, writeTimeout: d.WriteTimeout}
	id := d.b.Join(c)
	defer d.b.Leave(id)

	d.l.Tracef("dashboard socket %s from %s using %s", id, r.RemoteAddr, encoding)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			d.l.Tracef("dashboard socket %s closed: %s", id, err)
			return
		}

		var req interp.Request
		switch messageType {
		case websocket.TextMessage:
			err = json.Unmarshal(message, &req)
		case websocket.BinaryMessage:
			err = DecodeCBOR(message, &req)
		default:
			continue
		}

		var resp interp.Response
		if err != nil {
			resp.Error = "malformed request: " + err.Error()
		} else {
			resp = d.in.Dispatch(ctx, req)
		}

		if err = c.write(ResponseMessage{Kind: KindResponse, Response: resp}); err != nil {
			d.l.Tracef("dashboard socket %s write failed: %s", id, err)
			return
		}

		// statistics and options may have moved
		d.b.PublishState()
	}
}

func (c *wsConsumer) Send(ctx context.Context, p *Payload) error {
	return c.write(p)
}

func (c *wsConsumer) write(v any) (err error) {
	var data []byte
	messageType := websocket.TextMessage
	if c.binary {
		messageType = websocket.BinaryMessage
		data, err = EncodeCBOR(v)
	} else {
		data, err = EncodeJSON(v)
	}
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}
