package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver is an in-memory mDNS resolver for tests. Register
// entries per service string and Browse/Lookup replay them without
// touching the network.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService registers an entry returned by Browse and Lookup.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	queued := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(queued, m.services[service])
	m.mu.RUnlock()

	for _, entry := range queued {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	queued := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(queued, m.services[service])
	m.mu.RUnlock()

	for _, entry := range queued {
		if entry.Instance != instance {
			continue
		}
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	return nil
}

// MockDaemonService builds a plain daemon entry for tests.
func MockDaemonService(serial string, port int, ips ...net.IP) *zeroconf.ServiceEntry {
	instance := "adb-" + serial + "-AbCdEf"
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServicePlain,
			Domain:   DefaultDomain,
		},
		HostName: "Android.local.",
		Port:     port,
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			entry.AddrIPv4 = append(entry.AddrIPv4, ip)
		} else {
			entry.AddrIPv6 = append(entry.AddrIPv6, ip)
		}
	}
	return entry
}

// MockPairingService builds a pairing entry carrying the device name
// TXT record.
func MockPairingService(instance, deviceName string, port int, ip net.IP) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServiceTLSPairing,
			Domain:   DefaultDomain,
		},
		HostName: "Android.local.",
		Port:     port,
		AddrIPv4: []net.IP{ip},
		Text:     []string{"name=" + deviceName},
	}
}
