package interp

import (
	"context"
)

type (
	// Request is a statement line sent by a remote consumer.
	Request struct {
		Command string `json:"command" cbor:"command"`
	}

	// Response is the rendered result of a Request. Error is empty on
	// success.
	Response struct {
		Response string `json:"response" cbor:"response"`
		Format   string `json:"format" cbor:"format"`
		Error    string `json:"error,omitempty" cbor:"error,omitempty"`
	}
)

// Dispatch runs a remote request and packages its output.
func (in *Interp) Dispatch(ctx context.Context, req Request) (resp Response) {
	res, err := in.Run(ctx, req.Command)
	resp.Response = res.Output
	resp.Format = string(res.Format)
	if err != nil {
		in.l.Debugf("remote command %q failed: %s", req.Command, err)
		resp.Error = err.Error()
	}
	return
}
