package protocol

import (
	"fmt"
	"strings"
)

// RPC represents a datagram received from the network.
// From is the transport-level source IP, never a value taken from the payload.
type RPC struct {
	From    string
	Payload []byte
}

// DeviceType is one of mobile | desktop | web | headless | server.
type DeviceType string

const (
	DeviceMobile   DeviceType = "mobile"
	DeviceDesktop  DeviceType = "desktop"
	DeviceWeb      DeviceType = "web"
	DeviceHeadless DeviceType = "headless"
	DeviceServer   DeviceType = "server"
)

// ParseDeviceType validates s against the known device types.
func ParseDeviceType(s string) (DeviceType, error) {
	switch t := DeviceType(strings.ToLower(s)); t {
	case DeviceMobile, DeviceDesktop, DeviceWeb, DeviceHeadless, DeviceServer:
		return t, nil
	}
	return "", fmt.Errorf("unknown device type %q", s)
}

func (t DeviceType) MarshalText() ([]byte, error) {
	if _, err := ParseDeviceType(string(t)); err != nil {
		return nil, err
	}
	return []byte(t), nil
}

func (t *DeviceType) UnmarshalText(b []byte) error {
	parsed, err := ParseDeviceType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Protocol is the scheme a peer serves its HTTP API on.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

// ParseProtocol validates s as http or https.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(s)); p {
	case ProtocolHTTP, ProtocolHTTPS:
		return p, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

func (p Protocol) MarshalText() ([]byte, error) {
	if _, err := ParseProtocol(string(p)); err != nil {
		return nil, err
	}
	return []byte(p), nil
}

func (p *Protocol) UnmarshalText(b []byte) error {
	parsed, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DeviceInfo identifies a device. Fingerprint is only used to ignore our own
// messages; it is not a credential.
type DeviceInfo struct {
	Alias       string     `json:"alias"`
	DeviceModel string     `json:"deviceModel,omitempty"`
	DeviceType  DeviceType `json:"deviceType"`
	Fingerprint string     `json:"fingerprint"`
}

func (d DeviceInfo) String() string {
	model := d.DeviceModel
	if model == "" {
		model = "Generic"
	}
	return fmt.Sprintf("%s (%s %s)", d.Alias, model, d.DeviceType)
}
