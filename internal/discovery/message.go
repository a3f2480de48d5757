package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AnnouncementType is the type tag carried by every presence datagram
const AnnouncementType = "node_mailer_instance"

// MaxDatagramSize is the read buffer for one datagram (stay under MTU)
const MaxDatagramSize = 1024

// ErrMalformedDatagram is returned for datagrams that are not presence announcements
var ErrMalformedDatagram = errors.New("malformed datagram")

// Announcement is the UDP broadcast payload (JSON encoded)
type Announcement struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// EncodeAnnouncement builds the datagram announcing name
func EncodeAnnouncement(name string) []byte {
	data, _ := json.Marshal(Announcement{Type: AnnouncementType, Name: name})
	return data
}

// DecodeAnnouncement parses a datagram.
// A missing type is accepted; a foreign type or a missing name is not.
func DecodeAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return Announcement{}, fmt.Errorf("%w: %v", ErrMalformedDatagram, err)
	}
	// Stricter than accepting any object with a name: untyped datagrams pass, other apps on the port do not
	if a.Type != "" && a.Type != AnnouncementType {
		return Announcement{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedDatagram, a.Type)
	}
	if a.Name == "" {
		return Announcement{}, fmt.Errorf("%w: missing name", ErrMalformedDatagram)
	}
	return a, nil
}
