package relayutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dottedQuad() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("%d.%d.%d.%d",
			rapid.IntRange(0, 255).Draw(t, "a"),
			rapid.IntRange(0, 255).Draw(t, "b"),
			rapid.IntRange(0, 255).Draw(t, "c"),
			rapid.IntRange(0, 255).Draw(t, "d"),
		)
	})
}

func TestIsValidIPAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{"0.0.0.0", true},
		{"255.255.255.255", true},
		{"192.168.1.10", true},
		{"256.1.1.1", false},
		{"1.2.3", false},
		{"1.2.3.4.5", false},
		{"a.b.c.d", false},
		{"1.2.3.", false},
		{"", false},
		{"0000.0000.0000.0", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsValidIPAddress(tc.in), tc.in)
	}
}

func TestIsValidIPAddress_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ip := dottedQuad().Draw(t, "ip")
		if !IsValidIPAddress(ip) {
			t.Fatalf("valid dotted quad %q rejected", ip)
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringN(16, 40, -1).Draw(t, "long")
		if IsValidIPAddress(s) {
			t.Fatalf("over-long input %q accepted", s)
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		bad := rapid.IntRange(256, 999).Draw(t, "bad")
		pos := rapid.IntRange(0, 3).Draw(t, "pos")
		parts := []int{1, 2, 3, 4}
		parts[pos] = bad
		ip := fmt.Sprintf("%d.%d.%d.%d", parts[0], parts[1], parts[2], parts[3])
		if IsValidIPAddress(ip) {
			t.Fatalf("out-of-range component accepted in %q", ip)
		}
	})
}

func TestIPInSubnet(t *testing.T) {
	t.Parallel()

	assert.True(t, IPInSubnet("0.0.0.0", "0.0.0.0/8"))
	assert.True(t, IPInSubnet("0.255.255.255", "0.0.0.0/8"))
	assert.False(t, IPInSubnet("1.0.0.0", "0.0.0.0/8"))

	assert.True(t, IPInSubnet("10.1.2.3", "10.0.0.0/8"))
	assert.True(t, IPInSubnet("192.168.1.200", "192.168.1.0/24"))
	assert.False(t, IPInSubnet("192.168.2.1", "192.168.1.0/24"))
	assert.True(t, IPInSubnet("8.8.8.8", "1.2.3.4/0"))
	assert.True(t, IPInSubnet("1.2.3.4", "1.2.3.4/32"))
	assert.False(t, IPInSubnet("1.2.3.5", "1.2.3.4/32"))

	assert.False(t, IPInSubnet("1.2.3.4", "1.2.3.0/33"))
	assert.False(t, IPInSubnet("1.2.3.4", "1.2.3.0/x"))
	assert.False(t, IPInSubnet("1.2.3.4", "1.2.3.0"))
	assert.False(t, IPInSubnet("1.2.3.4", "1.2.3.0/8/8"))
}

func TestIPInSubnet_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ip := dottedQuad().Draw(t, "ip")
		if !IPInSubnet(ip, Wildcard) {
			t.Fatalf("wildcard did not match %q", ip)
		}
		if !IPInSubnet(ip, ip) {
			t.Fatalf("literal %q did not match itself", ip)
		}
		if !IPInSubnet(ip, ip+"/32") {
			t.Fatalf("%q not in its own /32", ip)
		}
		if !IPInSubnet(ip, "0.0.0.0/0") {
			t.Fatalf("%q not in /0", ip)
		}
	})

	// Any literal equality short-circuits, even for non-addresses.
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		if !IPInSubnet(s, s) {
			t.Fatalf("literal equality failed for %q", s)
		}
	})
}

func TestIsValidPort(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidPort("0"))
	assert.True(t, IsValidPort("9001"))
	assert.True(t, IsValidPort("65535"))
	assert.False(t, IsValidPort("65536"))
	assert.False(t, IsValidPort("-1"))
	assert.False(t, IsValidPort("http"))
	assert.False(t, IsValidPort(""))
}

func TestPortInRange(t *testing.T) {
	t.Parallel()

	assert.True(t, PortInRange("443", Wildcard))
	assert.True(t, PortInRange("80", "80-443"))
	assert.True(t, PortInRange("443", "80-443"))
	assert.True(t, PortInRange("200", "80-443"))
	assert.False(t, PortInRange("79", "80-443"))
	assert.False(t, PortInRange("444", "80-443"))
	assert.True(t, PortInRange("9001", "9001"))
	assert.False(t, PortInRange("9002", "9001"))
	assert.False(t, PortInRange("abc", "1-100"))
	assert.False(t, PortInRange("5", "x-100"))
}

func TestPortInRange_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.IntRange(0, 65535).Draw(t, "lo")
		hi := rapid.IntRange(lo, 65535).Draw(t, "hi")
		p := rapid.IntRange(0, 65535).Draw(t, "p")
		spec := fmt.Sprintf("%d-%d", lo, hi)
		want := lo <= p && p <= hi
		if got := PortInRange(fmt.Sprint(p), spec); got != want {
			t.Fatalf("PortInRange(%d, %q) = %v, want %v", p, spec, got, want)
		}
	})
}

func TestUnitConversions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), BytesToKB(0))
	assert.Equal(t, int64(0), BytesToKB(1023))
	assert.Equal(t, int64(1), BytesToKB(1024))
	assert.Equal(t, int64(97), BytesToKB(100000))

	assert.Equal(t, int64(0), SecondsToDays(0))
	assert.Equal(t, int64(0), SecondsToDays(86399))
	assert.Equal(t, int64(100), SecondsToDays(8640000))
	assert.Equal(t, int64(100), SecondsToDays(8640001))

	assert.Equal(t, int64(2048), KBToBytes(2))
	assert.Equal(t, int64(172800), DaysToSeconds(2))
}

func TestNormalizePlatform(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                  "NotAvailable",
		"Tor 0.4.8.9 on Linux":              "Linux",
		"Tor 0.2.1.30 on Windows XP":        "WindowsXP",
		"Tor 0.2.2.35 on Windows Server":    "WindowsServer",
		"Tor 0.4.7.1 on Windows 8 [client]": "WindowsOther",
		"Tor 0.4.8.9 on Darwin":             "Darwin",
		"Tor 0.4.8.9 on FreeBSD":            "FreeBSD",
		"Tor 0.4.8.9 on NetBSD":             "NetBSD",
		"Tor 0.4.8.9 on OpenBSD":            "OpenBSD",
		"Tor 0.2.0.35 on SunOS":             "SunOS",
		"Tor 0.1.2.19 on IRIX64":            "IRIX",
		"Tor 0.2.1.30 on Cygwin":            "Cygwin",
		"Tor 0.4.8.9 on DragonFly":          "DragonFly",
		"Tor 0.4.8.9 on Plan 9":             "NotAvailable",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePlatform(raw), raw)
	}
}

func TestExtractContact(t *testing.T) {
	t.Parallel()

	desc := "router moria1 128.31.0.34 9101 0 9131\n" +
		"platform Tor 0.4.8.9 on Linux\n" +
		"contact 1024D/EB5A896A28988BF5 arma mit edu\r\n" +
		"contact second line ignored\n"
	require.Equal(t, "1024D/EB5A896A28988BF5 arma mit edu", ExtractContact(desc))

	require.Equal(t, "No contact information given", ExtractContact("router x 1.2.3.4 9001 0 0\n"))
	require.Equal(t, "No contact information given", ExtractContact(""))
	require.Equal(t, "", ExtractContact("contact"))
}
