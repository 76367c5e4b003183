package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrNotMulticastMessage is returned when a datagram is neither an announce
// nor a response.
var ErrNotMulticastMessage = errors.New("not a multicast message")

// MulticastCommon holds the fields shared by announcements and responses.
type MulticastCommon struct {
	Version  string
	Device   DeviceInfo
	Port     uint16
	Protocol Protocol
	// Download is the peer's download-mode preference; nil when the field was absent.
	Download *bool
}

// Common returns the shared fields. It is promoted to both message variants.
func (c MulticastCommon) Common() MulticastCommon { return c }

// PrefersDownload reports the download preference, defaulting to false.
func (c MulticastCommon) PrefersDownload() bool {
	return c.Download != nil && *c.Download
}

// MulticastMessage is either an *Announce or a *Response.
type MulticastMessage interface {
	Common() MulticastCommon
	IsAnnounce() bool
}

// Announce is sent by a device to make itself known ("announce": true).
type Announce struct {
	MulticastCommon
}

func (*Announce) IsAnnounce() bool { return true }

// Response answers an announcement. The announce field is either absent or false.
type Response struct {
	MulticastCommon
	// ExplicitFalse is set when the datagram carried "announce": false
	// instead of omitting the field.
	ExplicitFalse bool
}

func (*Response) IsAnnounce() bool { return false }

// NewAnnounce builds an announcement for the local device.
func NewAnnounce(device DeviceInfo, port uint16, proto Protocol, download bool) *Announce {
	return &Announce{MulticastCommon: newCommon(device, port, proto, download)}
}

// NewResponse builds a response for the local device.
func NewResponse(device DeviceInfo, port uint16, proto Protocol, download bool) *Response {
	return &Response{MulticastCommon: newCommon(device, port, proto, download), ExplicitFalse: true}
}

func newCommon(device DeviceInfo, port uint16, proto Protocol, download bool) MulticastCommon {
	return MulticastCommon{
		Version:  Version,
		Device:   device,
		Port:     port,
		Protocol: proto,
		Download: &download,
	}
}

type multicastWire struct {
	Alias       *string     `json:"alias"`
	Version     *string     `json:"version"`
	DeviceModel *string     `json:"deviceModel,omitempty"`
	DeviceType  *DeviceType `json:"deviceType"`
	Fingerprint *string     `json:"fingerprint"`
	Port        *uint16     `json:"port"`
	Protocol    *Protocol   `json:"protocol"`
	Download    *bool       `json:"download,omitempty"`
	Announce    *bool       `json:"announce,omitempty"`
}

func (w *multicastWire) common() (MulticastCommon, error) {
	switch {
	case w.Alias == nil:
		return MulticastCommon{}, fmt.Errorf("%w: missing alias", ErrNotMulticastMessage)
	case w.Version == nil:
		return MulticastCommon{}, fmt.Errorf("%w: missing version", ErrNotMulticastMessage)
	case w.DeviceType == nil:
		return MulticastCommon{}, fmt.Errorf("%w: missing deviceType", ErrNotMulticastMessage)
	case w.Fingerprint == nil:
		return MulticastCommon{}, fmt.Errorf("%w: missing fingerprint", ErrNotMulticastMessage)
	case w.Port == nil:
		return MulticastCommon{}, fmt.Errorf("%w: missing port", ErrNotMulticastMessage)
	case w.Protocol == nil:
		return MulticastCommon{}, fmt.Errorf("%w: missing protocol", ErrNotMulticastMessage)
	}

	c := MulticastCommon{
		Version: *w.Version,
		Device: DeviceInfo{
			Alias:       *w.Alias,
			DeviceType:  *w.DeviceType,
			Fingerprint: *w.Fingerprint,
		},
		Port:     *w.Port,
		Protocol: *w.Protocol,
		Download: w.Download,
	}
	if w.DeviceModel != nil {
		c.Device.DeviceModel = *w.DeviceModel
	}
	return c, nil
}

// asAnnounce matches only a literal "announce": true.
func (w *multicastWire) asAnnounce(c MulticastCommon) (*Announce, bool) {
	if w.Announce == nil || !*w.Announce {
		return nil, false
	}
	return &Announce{MulticastCommon: c}, true
}

// asResponse matches an absent or false announce field.
func (w *multicastWire) asResponse(c MulticastCommon) (*Response, bool) {
	if w.Announce != nil && *w.Announce {
		return nil, false
	}
	return &Response{MulticastCommon: c, ExplicitFalse: w.Announce != nil}, true
}

// DecodeMulticast parses one datagram. The announce shape is tried first,
// then the response shape. Keys match case-insensitively, as encoding/json
// does, so "Announce" is read as "announce".
func DecodeMulticast(b []byte) (MulticastMessage, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: payload is not valid utf-8", ErrNotMulticastMessage)
	}

	var w multicastWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMulticastMessage, err)
	}
	c, err := w.common()
	if err != nil {
		return nil, err
	}

	if a, ok := w.asAnnounce(c); ok {
		return a, nil
	}
	if r, ok := w.asResponse(c); ok {
		return r, nil
	}
	return nil, ErrNotMulticastMessage
}

// EncodeMulticast serializes an announcement or response as JSON.
func EncodeMulticast(m MulticastMessage) ([]byte, error) {
	c := m.Common()
	w := multicastWire{
		Alias:       &c.Device.Alias,
		Version:     &c.Version,
		DeviceType:  &c.Device.DeviceType,
		Fingerprint: &c.Device.Fingerprint,
		Port:        &c.Port,
		Protocol:    &c.Protocol,
		Download:    c.Download,
	}
	if c.Device.DeviceModel != "" {
		w.DeviceModel = &c.Device.DeviceModel
	}

	switch v := m.(type) {
	case *Announce:
		yes := true
		w.Announce = &yes
	case *Response:
		if v.ExplicitFalse {
			no := false
			w.Announce = &no
		}
	default:
		return nil, fmt.Errorf("unsupported multicast message %T", m)
	}
	return json.Marshal(w)
}
