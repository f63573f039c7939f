// Package discovery finds debuggable devices on the local network via
// DNS-SD (mDNS). Devices advertise a plain daemon service, a TLS
// connect service, and a TLS pairing service; browsing any of them
// yields connect targets for the host server.
package discovery

// ServiceType identifies the kind of DNS-SD service a device
// advertises.
type ServiceType int

// ServiceType constants.
const (
	// ServiceTypeUnknown represents an unknown or invalid service type.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypePlain is the daemon listening for unencrypted TCP
	// connections ("adb tcpip" mode and emulators).
	ServiceTypePlain

	// ServiceTypeTLSConnect is the daemon listening for TLS
	// connections from already-paired hosts.
	ServiceTypeTLSConnect

	// ServiceTypeTLSPairing is the short-lived pairing service shown
	// while the device displays a pairing code.
	ServiceTypeTLSPairing
)

// DNS-SD service type strings.
const (
	// ServicePlain is the DNS-SD service type for plain TCP daemons.
	ServicePlain = "_adb._tcp"

	// ServiceTLSConnect is the DNS-SD service type for TLS daemons.
	ServiceTLSConnect = "_adb-tls-connect._tcp"

	// ServiceTLSPairing is the DNS-SD service type for pairing.
	ServiceTLSPairing = "_adb-tls-pairing._tcp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."
)

// String returns a human-readable string for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypePlain:
		return "Plain"
	case ServiceTypeTLSConnect:
		return "TLSConnect"
	case ServiceTypeTLSPairing:
		return "TLSPairing"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the service type is valid.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypePlain ||
		s == ServiceTypeTLSConnect ||
		s == ServiceTypeTLSPairing
}

// ServiceString returns the DNS-SD service type string.
func (s ServiceType) ServiceString() string {
	switch s {
	case ServiceTypePlain:
		return ServicePlain
	case ServiceTypeTLSConnect:
		return ServiceTLSConnect
	case ServiceTypeTLSPairing:
		return ServiceTLSPairing
	default:
		return ""
	}
}

// BrowsableServiceTypes lists the service types a full scan browses,
// in display order.
func BrowsableServiceTypes() []ServiceType {
	return []ServiceType{ServiceTypePlain, ServiceTypeTLSConnect, ServiceTypeTLSPairing}
}
