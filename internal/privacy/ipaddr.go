package privacy

import (
	"net/netip"
	"regexp"
)

var (
	ipv4Pattern = regexp.MustCompile(`(?:\d{1,3}\.){3}\d{1,3}`)

	// Maximal runs of hex digits and colons that contain at least one colon.
	// Word-character neighbours are rejected in code since RE2 has no lookaround.
	ipv6Pattern = regexp.MustCompile(`[0-9A-Fa-f:]*:[0-9A-Fa-f:]*`)
)

// minIPv6Length filters short hex/colon runs such as clock times.
const minIPv6Length = 10

// reservedPrefixes are special-purpose ranges (IANA registries) that are not
// globally reachable and therefore not treated as identifying.
var reservedPrefixes = mustParsePrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"255.255.255.255/32",
	"::/128",
	"::1/128",
	"::ffff:0:0/96",
	"64:ff9b:1::/48",
	"100::/64",
	"2001::/23",
	"2001:db8::/32",
	"2001:10::/28",
	"fc00::/7",
	"fe80::/10",
)

func mustParsePrefixes(prefixes ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(prefixes))
	for i, p := range prefixes {
		out[i] = netip.MustParsePrefix(p)
	}
	return out
}

// IsPublicIP reports whether ip is outside every private, loopback,
// link-local, multicast and otherwise reserved range.
func IsPublicIP(ip netip.Addr) bool {
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast():
		return false
	}

	for _, p := range reservedPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

type ipv4Detector struct{}

func (ipv4Detector) Category() Category { return CategoryIPv4 }

func (ipv4Detector) Detect(text string) []Match {
	var matches []Match
	for _, loc := range ipv4Pattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		// Part of a longer digit run, e.g. 1234.5.6.7
		if (start > 0 && isDigitByte(text[start-1])) || (end < len(text) && isDigitByte(text[end])) {
			continue
		}

		literal := text[start:end]
		ip, err := netip.ParseAddr(literal)
		if err != nil || !ip.Is4() || !IsPublicIP(ip) {
			continue
		}

		matches = append(matches, Match{
			Start:    start,
			End:      end,
			Category: CategoryIPv4,
			Text:     literal,
			Key:      literal,
		})
	}
	return matches
}

type ipv6Detector struct{}

func (ipv6Detector) Category() Category { return CategoryIPv6 }

// Detect keys pseudonyms by the literal spelling, so two valid spellings of
// the same address are matched independently.
func (ipv6Detector) Detect(text string) []Match {
	var matches []Match
	seen := make(map[string]bool)
	for _, loc := range ipv6Pattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if (start > 0 && isWordByte(text[start-1])) || (end < len(text) && isWordByte(text[end])) {
			continue
		}

		literal := text[start:end]
		if len(literal) < minIPv6Length || seen[literal] {
			continue
		}

		ip, err := netip.ParseAddr(literal)
		if err != nil || !ip.Is6() || ip.Is4In6() || ip.Zone() != "" || !IsPublicIP(ip) {
			continue
		}

		seen[literal] = true
		matches = append(matches, Match{
			Start:    start,
			End:      end,
			Category: CategoryIPv6,
			Text:     literal,
			Key:      literal,
		})
	}
	return matches
}
