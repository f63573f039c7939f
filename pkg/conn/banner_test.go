package conn

import (
	"errors"
	"strings"
	"testing"
)

func TestParseBannerDevice(t *testing.T) {
	payload := []byte("device::ro.product.name=generic;ro.product.model=Pixel;features=shell_v2,cmd\x00")

	b, err := ParseBanner(payload)
	if err != nil {
		t.Fatalf("ParseBanner failed: %v", err)
	}
	if b.State != DeviceStateDevice {
		t.Errorf("state = %q, want %q", b.State, DeviceStateDevice)
	}
	if got := b.Properties["ro.product.name"]; got != "generic" {
		t.Errorf("ro.product.name = %q, want %q", got, "generic")
	}
	if got := b.Properties["ro.product.model"]; got != "Pixel" {
		t.Errorf("ro.product.model = %q, want %q", got, "Pixel")
	}
	if !b.Features.Has(FeatureShellV2) || !b.Features.Has(FeatureCmd) {
		t.Errorf("features = %v, want shell_v2 and cmd", b.Features.List())
	}
	if b.Features.Has(FeatureStatV2) {
		t.Error("stat_v2 should not be advertised")
	}
}

func TestParseBannerNoProperties(t *testing.T) {
	b, err := ParseBanner([]byte("sideload::"))
	if err != nil {
		t.Fatalf("ParseBanner failed: %v", err)
	}
	if b.State != DeviceStateSideload {
		t.Errorf("state = %q, want %q", b.State, DeviceStateSideload)
	}
	if len(b.Properties) != 0 {
		t.Errorf("properties = %v, want none", b.Properties)
	}
}

func TestParseBannerMalformed(t *testing.T) {
	for _, payload := range []string{"", "device", "::features=cmd"} {
		if _, err := ParseBanner([]byte(payload)); !errors.Is(err, ErrBadBanner) {
			t.Errorf("ParseBanner(%q) error = %v, want ErrBadBanner", payload, err)
		}
	}
}

func TestParseBannerIgnoresEmptyPairs(t *testing.T) {
	b, err := ParseBanner([]byte("device::;foo=bar;;novalue;features=\x00"))
	if err != nil {
		t.Fatalf("ParseBanner failed: %v", err)
	}
	if got := b.Properties["foo"]; got != "bar" {
		t.Errorf("foo = %q, want %q", got, "bar")
	}
	if _, ok := b.Properties["novalue"]; ok {
		t.Error("pair without '=' should be skipped")
	}
	if len(b.Features) != 0 {
		t.Errorf("features = %v, want none", b.Features.List())
	}
}

func TestHostBanner(t *testing.T) {
	payload := HostBanner(NewFeatureSet(FeatureShellV2))

	if payload[len(payload)-1] != 0 {
		t.Error("host banner is not NUL terminated")
	}
	s := string(payload[:len(payload)-1])
	if !strings.HasPrefix(s, DeviceStateHost+"::") {
		t.Errorf("banner = %q, want host:: prefix", s)
	}

	b, err := ParseBanner(payload)
	if err != nil {
		t.Fatalf("host banner does not parse back: %v", err)
	}
	if !b.Features.Has(FeatureShellV2) {
		t.Errorf("features = %v, want shell_v2", b.Features.List())
	}
}

func TestFeatureSet(t *testing.T) {
	fs := NewFeatureSet(FeatureShellV2, "", FeatureCmd)
	if len(fs) != 2 {
		t.Fatalf("len = %d, want 2 (empty identifiers dropped)", len(fs))
	}
	if !fs.Has(FeatureShellV2) || !fs.Has(FeatureCmd) {
		t.Errorf("set = %v", fs.List())
	}
	if fs.Has(FeatureLsV2) {
		t.Error("ls_v2 should not be present")
	}
	if got := len(fs.List()); got != 2 {
		t.Errorf("List len = %d, want 2", got)
	}
}
