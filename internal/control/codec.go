// Wire codec of the dedicated-server control protocol.
// Every frame is an 8-byte little-endian header (payload length, handle)
// followed by a JSON payload. Handles at or above clientHandleBase belong to
// client requests and come back on the matching response; anything below is
// an unsolicited callback pushed by the server.

package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	// Greeting the server writes right after accepting the socket,
	// prefixed with its own 4-byte length. Doubles as coarse protocol
	// version negotiation, fine-grained versioning goes through the
	// SetApiVersion call during the handshake.
	protocolGreeting = "ControlRPC 2"

	// Client request handles live in the upper half of the uint32 space.
	clientHandleBase = uint32(0x80000000)

	// Frames above this size are considered corrupt.
	maxFrameSize = 4 * 1024 * 1024
)

// request is the payload of an outbound call frame.
type request struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// response is the payload of an inbound response frame. Exactly one of
// Result and Fault is set.
type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Fault  *fault          `json:"fault,omitempty"`
}

// fault is the transport envelope of a protocol-level error. Callers of the
// connection layer only ever see the unwrapped message, never this struct.
type fault struct {
	Code    int    `json:"faultCode"`
	Message string `json:"faultString"`
}

// Unwrap strips the transport wrapper text some server builds prepend to
// their fault strings.
func (f *fault) Unwrap() string {
	msg := f.Message
	for _, prefix := range []string{"XML-RPC fault:", "Fault:"} {
		if strings.HasPrefix(msg, prefix) {
			msg = strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return msg
}

// Callback is one unsolicited event pushed by the server.
type Callback struct {
	Name   string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// readGreeting consumes the protocol banner the server sends on accept.
func readGreeting(r io.Reader) error {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("reading greeting size: %w", err)
	}
	if size == 0 || size > 64 {
		return fmt.Errorf("unexpected greeting size %d", size)
	}
	banner := make([]byte, size)
	if _, err := io.ReadFull(r, banner); err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}
	if string(banner) != protocolGreeting {
		return fmt.Errorf("unsupported protocol %q", string(banner))
	}
	return nil
}

// writeFrame writes one header+payload frame. Callers serialize writes.
func writeFrame(w io.Writer, handle uint32, payload []byte) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], handle)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one header+payload frame.
func readFrame(r io.Reader) (handle uint32, payload []byte, err error) {
	var header [8]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := binary.LittleEndian.Uint32(header[0:4])
	handle = binary.LittleEndian.Uint32(header[4:8])
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload = make([]byte, size)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return handle, payload, nil
}

// isResponseHandle reports whether a frame answers one of our requests.
func isResponseHandle(handle uint32) bool {
	return handle >= clientHandleBase
}
