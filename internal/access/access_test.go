package access

import (
	"net/netip"
	"testing"
)

func TestParseMaskDefaultsToExactMatch(t *testing.T) {
	m, err := ParseMask("192.168.1.5")
	if err != nil {
		t.Fatalf("ParseMask: %v", err)
	}
	if m.Bits != 32 {
		t.Errorf("Bits = %d, want 32", m.Bits)
	}
}

func TestParseMaskRejectsOutOfRangeBits(t *testing.T) {
	if _, err := ParseMask("10.0.0.0/99"); err == nil {
		t.Fatal("expected error for out-of-range mask bits")
	}
}

func TestMaskMatches(t *testing.T) {
	tests := []struct {
		name string
		mask string
		peer string
		want bool
	}{
		{"exact v4 match", "10.0.0.5/32", "10.0.0.5", true},
		{"exact v4 mismatch", "10.0.0.5/32", "10.0.0.6", false},
		{"v4 subnet match", "192.168.0.0/16", "192.168.55.2", true},
		{"v4 subnet mismatch", "192.168.0.0/16", "192.169.0.1", false},
		{"v4-mapped v6 peer matches v4 rule", "10.0.0.5/32", "::ffff:10.0.0.5", true},
		{"v6 rule denies v4 peer", "fc00::/7", "10.0.0.5", false},
		{"v6 exact match", "::1/128", "::1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMask(tt.mask)
			if err != nil {
				t.Fatalf("ParseMask(%q): %v", tt.mask, err)
			}
			peer, err := netip.ParseAddr(tt.peer)
			if err != nil {
				t.Fatalf("ParseAddr(%q): %v", tt.peer, err)
			}
			if got := m.Matches(peer); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.peer, got, tt.want)
			}
		})
	}
}

func TestAllowListFirstMatchWins(t *testing.T) {
	deny, _ := ParseMask("10.0.0.0/8")
	list := NewAllowList(deny)
	peer := netip.MustParseAddr("10.1.2.3")
	if err := list.Check(peer); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
	other := netip.MustParseAddr("192.168.1.1")
	if err := list.Check(other); err == nil {
		t.Error("expected denial for non-matching peer")
	}
}

func TestEmptyAllowListAllowsEveryone(t *testing.T) {
	var list AllowList
	if err := list.Check(netip.MustParseAddr("8.8.8.8")); err != nil {
		t.Errorf("expected default-open, got %v", err)
	}
}

func TestDefaultPrivateNetworksParse(t *testing.T) {
	masks := DefaultPrivateNetworks()
	if len(masks) != 7 {
		t.Fatalf("got %d masks, want 7", len(masks))
	}
}
