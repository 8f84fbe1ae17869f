package cns_console

import (
	"encoding/binary"
	"io"
)

// maxPacketSize bounds a single request or response frame.
const maxPacketSize = 16 * 1024 * 1024

// Parses one frame from the front of inbound. The stream format is:
//
//	packetSize uint32 big endian
//	packet     [packetSize]byte
//
// where the packet is a JSON envelope, {"command": "..."} for a request
// and {"response": "...", "format": "...", "error": "..."} for a reply.
//
// length is 0 when more data is needed, and -1 when the stream is malformed.
func parseFrame(inbound []byte) (packet []byte, length int) {
	if len(inbound) < 4 {
		return
	}

	packetSize := binary.BigEndian.Uint32(inbound)
	if packetSize > maxPacketSize {
		length = -1
		return
	}
	if len(inbound)-4 < int(packetSize) {
		return
	}

	packet = inbound[4 : 4+packetSize]
	length = 4 + int(packetSize)
	return
}

func writeFrame(w io.Writer, packet []byte) error {
	frame := make([]byte, 4+len(packet))
	binary.BigEndian.PutUint32(frame, uint32(len(packet)))
	copy(frame[4:], packet)

	_, err := w.Write(frame)
	return err
}
