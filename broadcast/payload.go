// Package broadcast publishes session state to dashboard consumers.
package broadcast

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/zeebo/blake3"
)

const (
	KindState    = "state"
	KindResponse = "response"
)

type (
	// Payload is one message to dashboard consumers. A full payload carries
	// the whole namespace in Keys; otherwise Keys is a diff in which a nil
	// value means the path was deleted.
	Payload struct {
		Kind    string             `json:"kind" cbor:"kind"`
		Version int                `json:"version" cbor:"version"`
		Session string             `json:"session" cbor:"session"`
		Config  map[string]string  `json:"config" cbor:"config"`
		Options map[string]string  `json:"options" cbor:"options"`
		Stats   map[string]string  `json:"stats" cbor:"stats"`
		Status  string             `json:"status" cbor:"status"`
		Full    bool               `json:"full" cbor:"full"`
		Keys    map[string]*string `json:"keys" cbor:"keys"`
		Digest  string             `json:"digest,omitempty" cbor:"digest,omitempty"`
	}

	// ResponseMessage carries a command reply on the dashboard socket.
	ResponseMessage struct {
		Kind string `json:"kind" cbor:"kind"`
		interp.Response
	}
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("broadcast: cbor encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("broadcast: cbor decoder initialization failed: " + err.Error())
	}
}

func newPayload(s *session.Session) *Payload {
	return &Payload{
		Kind:    KindState,
		Version: session.ProtocolVersion,
		Session: s.ID(),
		Config:  s.ConfigValues(),
		Options: s.OptionValues(),
		Stats:   s.Stats().Values(),
		Status:  s.Status().String(),
		Keys:    map[string]*string{},
	}
}

// FullPayload snapshots the whole session.
func FullPayload(s *session.Session) *Payload {
	p := newPayload(s)
	p.Full = true

	snapshot := s.Snapshot()
	for path, value := range snapshot {
		value := value
		p.Keys[path] = &value
	}
	p.Digest = Digest(snapshot)
	return p
}

// DiffPayload carries the session state with only the changed keys.
func DiffPayload(s *session.Session, keys map[string]*string) *Payload {
	p := newPayload(s)
	maps.Copy(p.Keys, keys)
	return p
}

// Digest hashes a namespace snapshot so a consumer can verify that the
// state it assembled from diffs matches.
func Digest(snapshot map[string]string) string {
	h := blake3.New()
	paths := make([]string, 0, len(snapshot))
	for path := range snapshot {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	for _, path := range paths {
		h.Write([]byte(path))
		h.Write([]byte{0})
		h.Write([]byte(snapshot[path]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Apply folds p into state, replacing it entirely for a full payload.
func (p *Payload) Apply(state map[string]string) map[string]string {
	if p.Full || state == nil {
		state = map[string]string{}
	}
	for path, value := range p.Keys {
		if value == nil {
			delete(state, path)
		} else {
			state[path] = *value
		}
	}
	return state
}

func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func EncodeCBOR(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func DecodeCBOR(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
