package cns_console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-lane"
)

type (
	cmdDispatcher struct {
		port  int
		iface string
		s     *session.Session
	}
)

func newCmdDispatcher(port int, netInterface string, s *session.Session) *cmdDispatcher {
	return &cmdDispatcher{
		port:  port,
		iface: netInterface,
		s:     s,
	}
}

func (cd *cmdDispatcher) dispatchHandler(ctx context.Context, l lane.Lane, cs *clientState, packet []byte) (output []byte, err error) {
	var req interp.Request
	var resp interp.Response

	ll := l.SetLogLevel(lane.LogLevelError)
	l.SetLogLevel(ll)
	if ll >= lane.LogLevelTrace {
		l.Tracef("client %d request: %s", cs.id, printable(packet))
	}

	if err = json.Unmarshal(packet, &req); err != nil {
		resp.Error = fmt.Sprintf("malformed request: %s", err)
		err = nil
	} else {
		resp = cs.in.Dispatch(ctx, req)
	}

	if output, err = encodeResponse(resp); err != nil {
		l.Errorf("unable to marshal response: %s", err.Error())
		return
	}

	if ll >= lane.LogLevelTrace {
		l.Tracef("response: %s", printable(output))
	}
	return
}

func encodeResponse(resp interp.Response) ([]byte, error) {
	// can't use json.Marshal because it imposes some HTML safeguards that are not relevant to json
	buffer := &bytes.Buffer{}
	enc := json.NewEncoder(buffer)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

// Makes packet data fit on one log line.
func printable(data []byte) string {
	var sb strings.Builder
	for _, by := range data {
		if by == '\n' {
			sb.WriteString(`\n`)
		} else if by < 32 || by == '\\' || by > 127 {
			sb.WriteString(fmt.Sprintf(`\%02X`, by))
		} else {
			sb.WriteByte(by)
		}
		if sb.Len() > 128 {
			sb.WriteString("…")
			break
		}
	}
	return sb.String()
}
