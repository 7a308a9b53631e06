package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type advertised by coopctl bridge
	ServiceType = "_coopradio._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPath is the WebSocket endpoint served by a bridge
	DefaultPath = "/radio"

	// InstancePrefix starts every bridge instance name
	InstancePrefix = "coopradio-"
)

// instancePattern matches bridge instance names (e.g., "coopradio-7")
var instancePattern = regexp.MustCompile(`^coopradio-([A-Za-z0-9_-]+)$`)

// Scanner handles mDNS bridge discovery
type Scanner struct {
	// Timeout is the maximum time to wait for bridge discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers all radio bridges on the local network
func (s *Scanner) Scan(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu      sync.Mutex
		bridges []*Bridge
		seen    = make(map[string]bool)
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		for entry := range entries {
			b := parseServiceEntry(entry)
			if b == nil {
				continue
			}
			mu.Lock()
			if !seen[b.Instance] {
				seen[b.Instance] = true
				bridges = append(bridges, b)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once it notices ctx is done
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return bridges, nil
}

// Find waits for the bridge with the given ID
func (s *Scanner) Find(ctx context.Context, id string) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Bridge, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			b := parseServiceEntry(entry)
			if b != nil && b.ID == id {
				select {
				case found <- b:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case b := <-found:
		return b, nil
	case <-ctx.Done():
		select {
		case b := <-found:
			return b, nil
		default:
		}
		return nil, fmt.Errorf("radio bridge %s not found within %s", id, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Bridge.
// Returns nil if the entry is not a coop radio bridge or has no address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	id := metadata["id"]
	if id == "" {
		matches := instancePattern.FindStringSubmatch(entry.Instance)
		if len(matches) < 2 {
			return nil
		}
		id = matches[1]
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	return &Bridge{
		ID:           id,
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertisement is a running mDNS registration
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise publishes a bridge for id on port until Shutdown is called
func Advertise(id string, port int, extra map[string]string) (*Advertisement, error) {
	txt := []string{"id=" + id, "path=" + DefaultPath}
	for k, v := range extra {
		txt = append(txt, k+"="+v)
	}

	server, err := zeroconf.Register(InstancePrefix+id, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}
