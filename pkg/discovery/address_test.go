package discovery

import (
	"net"
	"testing"
)

func TestInstanceSerial(t *testing.T) {
	cases := []struct {
		instance string
		want     string
	}{
		{"adb-R5CN30XXYZ-AbCdEf", "R5CN30XXYZ"},
		{"adb-emulator-5554-vWxYz1", "emulator-5554"},
		{"studio-pairing-code", ""},
		{"adb-", ""},
		{"adb-noSuffix", ""},
	}
	for _, c := range cases {
		if got := InstanceSerial(c.instance); got != c.want {
			t.Errorf("InstanceSerial(%q) = %q, want %q", c.instance, got, c.want)
		}
	}
}

func TestSortIPsByPreference(t *testing.T) {
	linkLocal := net.ParseIP("fe80::1")
	ula := net.ParseIP("fd12:3456::1")
	global := net.ParseIP("2001:db8::1")
	v4 := net.IPv4(192, 168, 1, 77)

	sorted := SortIPsByPreference([]net.IP{linkLocal, ula, global, v4})

	want := []net.IP{v4, global, ula, linkLocal}
	for i, ip := range want {
		if !sorted[i].Equal(ip) {
			t.Errorf("sorted[%d] = %v, want %v", i, sorted[i], ip)
		}
	}
}

func TestSortIPsByPreferenceKeepsInput(t *testing.T) {
	in := []net.IP{net.ParseIP("fe80::1"), net.IPv4(10, 0, 0, 1)}
	SortIPsByPreference(in)
	if !in[0].Equal(net.ParseIP("fe80::1")) {
		t.Error("input slice was reordered")
	}
}

func TestFilterIPs(t *testing.T) {
	v4 := net.IPv4(192, 168, 1, 77)
	v6 := net.ParseIP("2001:db8::1")
	both := []net.IP{v4, v6}

	if got := FilterIPv4(both); len(got) != 1 || !got[0].Equal(v4) {
		t.Errorf("FilterIPv4 = %v", got)
	}
	if got := FilterIPv6(both); len(got) != 1 || !got[0].Equal(v6) {
		t.Errorf("FilterIPv6 = %v", got)
	}
}

func TestServiceTypeStrings(t *testing.T) {
	if ServiceTypePlain.ServiceString() != "_adb._tcp" {
		t.Errorf("plain = %q", ServiceTypePlain.ServiceString())
	}
	if ServiceTypeTLSConnect.ServiceString() != "_adb-tls-connect._tcp" {
		t.Errorf("tls-connect = %q", ServiceTypeTLSConnect.ServiceString())
	}
	if ServiceTypeTLSPairing.ServiceString() != "_adb-tls-pairing._tcp" {
		t.Errorf("tls-pairing = %q", ServiceTypeTLSPairing.ServiceString())
	}
	if ServiceTypeUnknown.ServiceString() != "" || ServiceTypeUnknown.IsValid() {
		t.Error("unknown type must be invalid")
	}
	for _, st := range BrowsableServiceTypes() {
		if !st.IsValid() {
			t.Errorf("browsable type %v invalid", st)
		}
	}
}
