// Package market holds the decoded feed message and the partial extraction of
// a routing key and price from it.
package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrDecode marks a frame that is not a JSON object.
var ErrDecode = errors.New("market: undecodable frame")

// Message is one decoded frame. Fields holds the JSON object with numbers
// kept as json.Number so prices are never rounded through float64. Raw is
// the frame as received; callers must not modify it.
type Message struct {
	Seq        uint64
	ReceivedAt time.Time
	Fields     map[string]any
	Raw        []byte
}

// Decode parses raw into a Message. raw must hold exactly one JSON object;
// trailing data is rejected.
func Decode(raw []byte, seq uint64, receivedAt time.Time) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if fields == nil {
		return Message{}, fmt.Errorf("%w: not an object", ErrDecode)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("%w: trailing data after object", ErrDecode)
	}

	return Message{
		Seq:        seq,
		ReceivedAt: receivedAt,
		Fields:     fields,
		Raw:        raw,
	}, nil
}

// Stream returns the combined-stream name carried by the frame, if any.
func (m Message) Stream() string {
	s, _ := m.Fields["stream"].(string)
	return s
}
