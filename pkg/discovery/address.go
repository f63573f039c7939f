package discovery

import (
	"net"
	"sort"
	"strings"
)

// InstanceSerial extracts the device serial from a daemon instance
// name of the form "adb-<serial>-<suffix>". Returns the empty string
// when the name does not match.
func InstanceSerial(instanceName string) string {
	rest, ok := strings.CutPrefix(instanceName, "adb-")
	if !ok {
		return ""
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return ""
	}
	return rest[:i]
}

// SortIPsByPreference sorts addresses into connect-target order.
// Priority (highest to lowest):
//  1. IPv4 (the common wireless-debugging path)
//  2. IPv6 global unicast
//  3. IPv6 unique local (fc00::/7)
//  4. IPv6 link-local
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	norm := ip.To16()
	if norm == nil {
		return 99
	}

	if norm.To4() != nil {
		if norm.IsLoopback() {
			return 80
		}
		return 0
	}

	switch {
	case isUniqueLocal(norm):
		return 2
	case norm.IsLinkLocalUnicast():
		return 3
	case norm.IsGlobalUnicast():
		return 1
	case norm.IsLoopback():
		return 80
	case norm.IsMulticast():
		return 90
	}
	return 10
}

// isUniqueLocal reports whether the IP is in fc00::/7.
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}
