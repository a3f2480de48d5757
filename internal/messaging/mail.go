// Package messaging delivers mail between instances over TCP.
//
// Each connection carries exactly one JSON envelope; the sender closes its
// write side to mark the end of the message, and the receiver decodes the
// accumulated bytes only once the stream has ended.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeType distinguishes mail delivery from shutdown signaling
type EnvelopeType string

const (
	// EnvelopeMail carries a Mail
	EnvelopeMail EnvelopeType = "mail"
	// EnvelopeShutdown asks the receiving instance to exit
	EnvelopeShutdown EnvelopeType = "shutdown"
)

// ErrMalformedMessage is returned when a connection body is not a valid envelope
var ErrMalformedMessage = errors.New("malformed message")

// Mail is a direct message between two instances
type Mail struct {
	SenderName string `json:"sender_name"`
	Message    string `json:"message"`
	// NodeString is an opaque payload blob, empty when nothing is attached
	NodeString string `json:"node_string"`
	// Timestamp is unix seconds at send time
	Timestamp int64 `json:"timestamp"`
}

// NewMail stamps a mail with the current time
func NewMail(sender, message, nodeString string) Mail {
	return Mail{
		SenderName: sender,
		Message:    message,
		NodeString: nodeString,
		Timestamp:  time.Now().Unix(),
	}
}

// HasNodes reports whether a payload blob is attached
func (m Mail) HasNodes() bool {
	return m.NodeString != ""
}

// Time returns the send time
func (m Mail) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// Envelope is the outer wrapper of every connection body
type Envelope struct {
	Type EnvelopeType `json:"type"`
	Mail *Mail        `json:"mail,omitempty"`
}

// EncodeMail serializes a mail envelope
func EncodeMail(m Mail) ([]byte, error) {
	data, err := json.Marshal(Envelope{Type: EnvelopeMail, Mail: &m})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mail: %w", err)
	}
	return data, nil
}

// EncodeShutdown serializes a shutdown envelope
func EncodeShutdown() []byte {
	data, _ := json.Marshal(Envelope{Type: EnvelopeShutdown})
	return data
}

// DecodeEnvelope parses a complete connection body
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case EnvelopeShutdown:
		env.Mail = nil
		return env, nil
	case EnvelopeMail:
		if env.Mail == nil {
			return Envelope{}, fmt.Errorf("%w: mail envelope without mail", ErrMalformedMessage)
		}
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
}
