// Package relayutil holds the small predicates and converters used when
// filtering and displaying relay records: address and port checks, unit
// conversions and normalisation of descriptor free text.
package relayutil

import (
	"strconv"
	"strings"

	"github.com/Shugur-Network/torstatus/internal/constants"
)

// maxIPv4Length is the length of the longest dotted-quad literal.
const maxIPv4Length = 15

const (
	bytesPerKB    = 1024
	secondsPerDay = 86400
)

// Wildcard matches every address or port.
const Wildcard = "*"

// IsValidIPAddress reports whether s is a dotted-quad IPv4 literal whose
// four components all lie in [0,255].
func IsValidIPAddress(s string) bool {
	if len(s) > maxIPv4Length {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// IPInSubnet reports whether ip lies inside subnet. The subnet is either the
// wildcard, a literal address compared lexically, or a base/bits CIDR
// expression. Anything else does not match.
func IPInSubnet(ip, subnet string) bool {
	if subnet == Wildcard || subnet == ip {
		return true
	}

	base, bitsStr, ok := strings.Cut(subnet, "/")
	if !ok || strings.Contains(bitsStr, "/") {
		return false
	}
	bits, err := strconv.Atoi(bitsStr)
	if err != nil || bits < 0 || bits > 32 {
		return false
	}
	baseVal, ok := ipv4ToUint32(base)
	if !ok {
		return false
	}
	ipVal, ok := ipv4ToUint32(ip)
	if !ok {
		return false
	}

	var mask uint32
	if bits > 0 {
		mask = ^uint32(0) << (32 - bits)
	}
	lower := baseVal & mask
	upper := baseVal | (^mask & 0xFFFFFFFF)
	return lower <= ipVal && ipVal <= upper
}

// IsValidPort reports whether s is an integer in [0,65535].
func IsValidPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 65535
}

// PortInRange reports whether port is matched by spec, which is the
// wildcard, an inclusive lo-hi range, or a literal port.
func PortInRange(port, spec string) bool {
	if spec == Wildcard {
		return true
	}
	if loStr, hiStr, ok := strings.Cut(spec, "-"); ok {
		lo, errLo := strconv.Atoi(loStr)
		hi, errHi := strconv.Atoi(hiStr)
		p, errP := strconv.Atoi(port)
		if errLo != nil || errHi != nil || errP != nil {
			return false
		}
		return lo <= p && p <= hi
	}
	return spec == port
}

// BytesToKB converts bytes per second into whole kilobytes per second,
// truncating toward zero.
func BytesToKB(bytesPerSec int64) int64 {
	return bytesPerSec / bytesPerKB
}

// SecondsToDays converts seconds into whole days, truncating toward zero.
func SecondsToDays(seconds int64) int64 {
	return seconds / secondsPerDay
}

// KBToBytes is the inverse unit step of BytesToKB.
func KBToBytes(kb int64) int64 {
	return kb * bytesPerKB
}

// DaysToSeconds is the inverse unit step of SecondsToDays.
func DaysToSeconds(days int64) int64 {
	return days * secondsPerDay
}

// Unit sizes in storage units, exported for range-bucket searches.
const (
	KB  int64 = bytesPerKB
	Day int64 = secondsPerDay
)

type platformName struct {
	substr    string
	canonical string
}

// platforms is scanned in order; the first substring found wins, so the
// more specific Windows entries precede the generic one.
var platforms = []platformName{
	{"Linux", "Linux"},
	{"XP", "WindowsXP"},
	{"Windows Server", "WindowsServer"},
	{"Windows", "WindowsOther"},
	{"Darwin", "Darwin"},
	{"FreeBSD", "FreeBSD"},
	{"NetBSD", "NetBSD"},
	{"OpenBSD", "OpenBSD"},
	{"SunOS", "SunOS"},
	{"IRIX", "IRIX"},
	{"Cygwin", "Cygwin"},
	{"Dragon", "DragonFly"},
}

// NormalizePlatform maps a raw descriptor platform line onto an OS
// category. Unknown or empty platforms map to "NotAvailable".
func NormalizePlatform(raw string) string {
	if raw == "" {
		return constants.DefaultPlatformSentinel
	}
	for _, p := range platforms {
		if strings.Contains(raw, p.substr) {
			return p.canonical
		}
	}
	return constants.DefaultPlatformSentinel
}

// ExtractContact returns the contact line of a server descriptor without
// its keyword, or the no-contact sentinel.
func ExtractContact(descriptor string) string {
	for _, line := range strings.Split(descriptor, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "contact") {
			continue
		}
		rest := line[len("contact"):]
		if rest != "" {
			rest = rest[1:]
		}
		return rest
	}
	return constants.DefaultContactSentinel
}

func ipv4ToUint32(s string) (uint32, bool) {
	if !IsValidIPAddress(s) {
		return 0, false
	}
	var v uint32
	for _, p := range strings.Split(s, ".") {
		n, _ := strconv.Atoi(p)
		v = v<<8 | uint32(n)
	}
	return v, true
}
