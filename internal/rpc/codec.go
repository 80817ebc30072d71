// Package rpc serves the binary surface: length-prefixed msgpack
// frames over TCP, mirroring the HTTP endpoints method-by-method.
package rpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
)

// Frame layout: uint32 big-endian payload length, then the msgpack
// payload. maxFrameSize bounds hostile lengths.
const maxFrameSize = 16 << 20

// Request is one client call.
type Request struct {
	ID     uint64             `msgpack:"id"`
	Method string             `msgpack:"method"`
	APIKey string             `msgpack:"api_key,omitempty"`
	Body   msgpack.RawMessage `msgpack:"body,omitempty"`
}

// Status mirrors the gRPC status numbering.
type Status struct {
	Code    int32  `msgpack:"code"`
	Message string `msgpack:"message,omitempty"`
}

// Response answers one request; streamed methods repeat the id.
type Response struct {
	ID     uint64             `msgpack:"id"`
	Status Status             `msgpack:"status"`
	Body   msgpack.RawMessage `msgpack:"body,omitempty"`
}

// gRPC status code values.
const (
	CodeOK                 = 0
	CodeInvalidArgument    = 3
	CodeDeadlineExceeded   = 4
	CodeNotFound           = 5
	CodeFailedPrecondition = 9
	CodeInternal           = 13
	CodeUnavailable        = 14
	CodeUnauthenticated    = 16
)

// statusOf maps a kinded error once at the RPC boundary.
func statusOf(err error) Status {
	if err == nil {
		return Status{Code: CodeOK}
	}
	var code int32
	switch gwerr.KindOf(err) {
	case gwerr.InvalidArgument:
		code = CodeInvalidArgument
	case gwerr.Unauthenticated:
		code = CodeUnauthenticated
	case gwerr.SessionNotFound, gwerr.ModeRefused:
		code = CodeFailedPrecondition
	case gwerr.SubscriptionNotFound:
		code = CodeNotFound
	case gwerr.Timeout:
		code = CodeDeadlineExceeded
	case gwerr.UpstreamUnavailable:
		code = CodeUnavailable
	default:
		code = CodeInternal
	}
	return Status{Code: code, Message: err.Error()}
}

// readFrame reads one length-prefixed payload.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, fmt.Errorf("rpc: empty frame")
	}
	if n > maxFrameSize {
		return nil, fmt.Errorf("rpc: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame writes one length-prefixed payload.
func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// decodeRequest parses one request frame.
func decodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// encodeResponse packs one response frame.
func encodeResponse(resp Response) ([]byte, error) {
	return msgpack.Marshal(resp)
}
