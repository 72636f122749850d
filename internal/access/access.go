// Package access implements distccd's IP-based allow-list: an ordered list
// of HOST/BITS masks, checked in order, first match wins.
package access

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	derrors "github.com/distccd-go/distccd/internal/errors"
)

// Mask is one parsed "HOST/BITS" allow-list entry.
type Mask struct {
	Value netip.Addr
	Bits  int
	raw   string
}

// ParseMask interprets a "HOST/BITS" specification. A bare HOST with no
// "/BITS" suffix defaults to an exact-match (all-ones) mask, exactly like
// dcc_parse_mask when mask_str is NULL.
func ParseMask(spec string) (Mask, error) {
	host, bitsStr, hasBits := strings.Cut(spec, "/")

	ip, err := netip.ParseAddr(host)
	if err != nil {
		// Fall back to hostname resolution, as dcc_parse_mask does via
		// getaddrinfo when RFC2553 support is compiled in.
		addrs, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(addrs) == 0 {
			return Mask{}, derrors.New(derrors.BadHostspec, "parse_mask", fmt.Sprintf("can't parse internet address %q", host))
		}
		parsed, ok := netip.AddrFromSlice(addrs[0])
		if !ok {
			return Mask{}, derrors.New(derrors.BadHostspec, "parse_mask", fmt.Sprintf("can't parse internet address %q", host))
		}
		ip = parsed.Unmap()
	}

	maxBits := 32
	if ip.Is6() && !ip.Is4In6() {
		maxBits = 128
	}

	bits := maxBits
	if hasBits {
		bits, err = strconv.Atoi(bitsStr)
		if err != nil || bits < 0 || bits > maxBits {
			return Mask{}, derrors.New(derrors.BadHostspec, "parse_mask", fmt.Sprintf("invalid mask %q", bitsStr))
		}
	}

	return Mask{Value: ip, Bits: bits, raw: spec}, nil
}

func (m Mask) String() string { return m.raw }

// Matches reports whether peer falls within this mask's network, applying
// the same v4/v6/mapped/compatible family-reconciliation rules as
// dcc_check_address.
func (m Mask) Matches(peer netip.Addr) bool {
	peer = peer.Unmap()
	value := m.Value.Unmap()

	if value.Is4() {
		var p4 netip.Addr
		switch {
		case peer.Is4():
			p4 = peer
		case peer.Is4In6():
			p4 = peer.Unmap()
		default:
			// v4-compatible peer (::a.b.c.d): top 96 bits zero, excluding
			// the unspecified address and ::1.
			b := peer.As16()
			if !peer.Is6() || [12]byte(b[:12]) != [12]byte{} || (b[12]|b[13]|b[14] == 0 && b[15] <= 1) {
				return false
			}
			p4 = netip.AddrFrom4([4]byte(b[12:]))
		}
		return maskedEqual(p4.AsSlice(), value.AsSlice(), m.Bits)
	}

	if peer.Is4() {
		return false
	}
	return maskedEqual(peer.AsSlice(), value.AsSlice(), m.Bits)
}

func maskedEqual(a, b []byte, bits int) bool {
	if len(a) != len(b) {
		return false
	}
	fullBytes := bits / 8
	rem := bits % 8
	for i := 0; i < fullBytes && i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	if rem > 0 && fullBytes < len(a) {
		shift := 8 - rem
		if a[fullBytes]>>shift != b[fullBytes]>>shift {
			return false
		}
	}
	return true
}

// AllowList is an ordered set of masks; Check returns nil if peer matches
// any entry, or an AccessDenied error otherwise. An empty list allows
// everyone, matching distccd's default-open behaviour when --allow is
// never passed.
type AllowList struct {
	entries []Mask
}

func NewAllowList(masks ...Mask) *AllowList {
	return &AllowList{entries: masks}
}

func (a *AllowList) Add(m Mask) {
	a.entries = append(a.entries, m)
}

func (a *AllowList) Check(peer netip.Addr) error {
	if a == nil || len(a.entries) == 0 {
		return nil
	}
	for _, m := range a.entries {
		if m.Matches(peer) {
			return nil
		}
	}
	return derrors.ErrNoMatch
}

// DefaultPrivateNetworks returns the canonical RFC1918, loopback, IPv6
// unique-local (fc00::/7) and IPv6 link-local (fe80::/10) masks used
// when an operator wants a safe-by-default allow list without enumerating
// every host by hand.
func DefaultPrivateNetworks() []Mask {
	specs := []string{
		"127.0.0.1/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	out := make([]Mask, 0, len(specs))
	for _, s := range specs {
		m, err := ParseMask(s)
		if err == nil {
			out = append(out, m)
		}
	}
	return out
}
