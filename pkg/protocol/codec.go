package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeStatus reports the outcome of attempting to decode one message
// from the front of a byte buffer.
type DecodeStatus int

const (
	// DecodeComplete means one full message was decoded.
	DecodeComplete DecodeStatus = iota
	// DecodeIncomplete means the buffer holds a truncated message;
	// the caller should read more bytes and retry.
	DecodeIncomplete
	// DecodeMalformed means the buffer holds structurally invalid
	// data that more bytes cannot repair.
	DecodeMalformed
)

// DecodeNext attempts to decode exactly one JSON value from the front
// of buf into v. On DecodeComplete, consumed is the number of bytes to
// drop from the front of buf, including the decoded value and any
// whitespace around it. On DecodeIncomplete and DecodeMalformed,
// consumed is zero and buf must be kept intact.
//
// The stream has no length prefix or delimiter; the JSON encoding
// being self-delimiting is the framing mechanism. Distinguishing a
// truncated value from an invalid one is what keeps partial reads
// recoverable while corrupt input stays fatal.
func DecodeNext(buf []byte, v any) (consumed int, status DecodeStatus, err error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, DecodeIncomplete, nil
		}
		return 0, DecodeMalformed, err
	}

	consumed = int(dec.InputOffset())
	for consumed < len(buf) && isJSONSpace(buf[consumed]) {
		consumed++
	}
	return consumed, DecodeComplete, nil
}

// Encode serializes one message to its canonical wire form.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// isJSONSpace reports whether b is insignificant whitespace between
// JSON values (RFC 8259 section 2).
func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
