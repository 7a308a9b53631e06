package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge represents a radio bridge discovered on the network
type Bridge struct {
	// ID is the door/bridge identifier (e.g., "7")
	ID string

	// Instance is the mDNS instance name (e.g., "coopradio-7")
	Instance string

	// Hostname is the mDNS hostname of the machine running the bridge
	Hostname string

	// IP is the IPv4 address, or IPv6 when no IPv4 address was advertised
	IP string

	// Port is the bridge's HTTP port
	Port int

	// Metadata contains the mDNS TXT record data
	// Common fields: "id=7", "path=/radio", "version=1.2.0"
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Coop radio %s (%s) at %s", b.ID, b.Hostname, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)))
}

// WebSocketURL returns the URL a WebSocketTransport should dial
func (b *Bridge) WebSocketURL() string {
	path := b.GetMetadata("path")
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(b.IP, strconv.Itoa(b.Port)), path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
