package urlx

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIPv4(t *testing.T) {
	cases := []struct {
		ip    string
		class Classification
	}{
		{"127.0.0.1", LoopbackV4},
		{"127.255.255.254", LoopbackV4},
		{"10.0.0.1", Private10},
		{"172.16.0.1", Private172},
		{"172.31.255.255", Private172},
		{"172.32.0.1", Public},
		{"192.168.1.1", Private192},
		{"169.254.169.254", LinkLocalV4},
		{"100.64.0.1", CarrierGradeNAT},
		{"100.127.255.255", CarrierGradeNAT},
		{"100.128.0.1", Public},
		{"224.0.0.251", MulticastV4},
		{"192.0.2.1", DocumentationV4},
		{"198.51.100.7", DocumentationV4},
		{"203.0.113.5", DocumentationV4},
		{"198.18.0.1", Benchmarking},
		{"198.19.255.255", Benchmarking},
		{"0.0.0.0", ThisNetwork},
		{"0.255.255.255", ThisNetwork},
		{"255.255.255.255", Broadcast},
		{"240.0.0.1", Reserved},
		{"192.0.0.1", IETFProtocol},
		{"8.8.8.8", Public},
		{"1.1.1.1", Public},
	}
	for _, tc := range cases {
		addr := netip.MustParseAddr(tc.ip)
		assert.Equal(t, tc.class, Classify(addr), "ip %s", tc.ip)
	}
}

func TestClassifyIPv6(t *testing.T) {
	cases := []struct {
		ip    string
		class Classification
	}{
		{"::1", LoopbackV6},
		{"::", ThisNetwork},
		{"::ffff:10.0.0.1", IPv4Mapped},
		{"::ffff:0:808:808", IPv4Translated},
		{"::ffff:0:7f00:1", IPv4Translated},
		{"64:ff9b::808:808", IPv4Translated},
		{"fe80::1", LinkLocalV6},
		{"fc00::1", PrivateFC},
		{"fd12:3456::1", PrivateFC},
		{"ff02::1", MulticastV6},
		{"2001:db8::1", DocumentationV6},
		{"2001::1", Teredo},
		{"2002:808:808::1", SixToFour},
		{"2606:4700::1111", Public},
	}
	for _, tc := range cases {
		addr := netip.MustParseAddr(tc.ip)
		assert.Equal(t, tc.class, Classify(addr), "ip %s", tc.ip)
	}
}

func TestEmbeddedV4Extraction(t *testing.T) {
	// 6to4 carries the IPv4 in bits 16..47.
	addr := netip.MustParseAddr("2002:808:808::1")
	v4, ok := EmbeddedV4(addr, SixToFour)
	require.True(t, ok)
	assert.Equal(t, "8.8.8.8", v4.String())

	// Teredo obfuscates the client IPv4 with XOR all-ones in the last
	// 32 bits: 127.0.0.1 -> 80ff:fffe.
	addr = netip.MustParseAddr("2001::80ff:fffe")
	v4, ok = EmbeddedV4(addr, Teredo)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", v4.String())

	addr = netip.MustParseAddr("::ffff:192.168.0.1")
	v4, ok = EmbeddedV4(addr, IPv4Mapped)
	require.True(t, ok)
	assert.Equal(t, "192.168.0.1", v4.String())
}

func TestValidateIPDefaults(t *testing.T) {
	unsafe := []string{
		"127.0.0.1", "10.1.2.3", "172.16.5.5", "192.168.0.1",
		"169.254.169.254", "100.64.9.9", "224.0.0.1", "192.0.2.1",
		"198.18.1.1", "0.0.0.0", "255.255.255.255", "240.1.1.1",
		"192.0.0.5", "::1", "fe80::1", "fd00::1", "2001:db8::1",
		"::ffff:127.0.0.1", // mapped loopback stays unsafe
	}
	for _, ip := range unsafe {
		res := ValidateIP(netip.MustParseAddr(ip), ValidateOptions{})
		assert.False(t, res.Safe, "ip %s classified %s", ip, res.Class)
	}

	safe := []string{"8.8.8.8", "93.184.216.34", "2606:4700::1111"}
	for _, ip := range safe {
		res := ValidateIP(netip.MustParseAddr(ip), ValidateOptions{})
		assert.True(t, res.Safe, "ip %s classified %s", ip, res.Class)
		assert.Equal(t, Public, res.Class)
	}
}

func TestValidateIPToggles(t *testing.T) {
	private := netip.MustParseAddr("10.0.0.1")
	loop := netip.MustParseAddr("127.0.0.1")
	link := netip.MustParseAddr("169.254.1.1")

	res := ValidateIP(private, ValidateOptions{AllowPrivate: true})
	assert.True(t, res.Safe)
	res = ValidateIP(loop, ValidateOptions{AllowPrivate: true})
	assert.False(t, res.Safe, "allowPrivate must not unlock loopback")

	res = ValidateIP(loop, ValidateOptions{AllowLoopback: true})
	assert.True(t, res.Safe)
	res = ValidateIP(private, ValidateOptions{AllowLoopback: true})
	assert.False(t, res.Safe, "allowLoopback must not unlock private")

	// Link-local stays unsafe under every toggle combination.
	res = ValidateIP(link, ValidateOptions{AllowPrivate: true, AllowLoopback: true})
	assert.False(t, res.Safe)
}

func TestValidateIPEmbedded(t *testing.T) {
	// Mapped public IPv4 is safe; the result records the recursion.
	res := ValidateIP(netip.MustParseAddr("::ffff:8.8.8.8"), ValidateOptions{})
	assert.True(t, res.Safe)
	require.NotNil(t, res.Embedded)
	assert.Equal(t, Public, res.Embedded.Class)

	// Mapped private IPv4 stays unsafe even with AllowPrivate: the
	// encoding exists to smuggle, the toggle does not follow it.
	res = ValidateIP(netip.MustParseAddr("::ffff:10.0.0.1"), ValidateOptions{AllowPrivate: true})
	assert.False(t, res.Safe)
	require.NotNil(t, res.Embedded)
	assert.Equal(t, Private10, res.Embedded.Class)

	// 6to4 wrapping loopback.
	res = ValidateIP(netip.MustParseAddr("2002:7f00:0001::1"), ValidateOptions{})
	assert.False(t, res.Safe)
	require.NotNil(t, res.Embedded)
	assert.Equal(t, LoopbackV4, res.Embedded.Class)

	// SIIT-translated loopback: ::ffff:0:7f00:1 embeds 127.0.0.1 and
	// must not fall through to Public.
	res = ValidateIP(netip.MustParseAddr("::ffff:0:7f00:1"), ValidateOptions{})
	assert.False(t, res.Safe)
	assert.Equal(t, IPv4Translated, res.Class)
	require.NotNil(t, res.Embedded)
	assert.Equal(t, LoopbackV4, res.Embedded.Class)

	// SIIT-translated public IPv4 stays reachable.
	res = ValidateIP(netip.MustParseAddr("::ffff:0:808:808"), ValidateOptions{})
	assert.True(t, res.Safe)
	require.NotNil(t, res.Embedded)
	assert.Equal(t, Public, res.Embedded.Class)

	// NAT64 well-known prefix gets the same treatment.
	res = ValidateIP(netip.MustParseAddr("64:ff9b::7f00:1"), ValidateOptions{})
	assert.False(t, res.Safe)
	require.NotNil(t, res.Embedded)
	assert.Equal(t, LoopbackV4, res.Embedded.Class)
}

func TestValidateIPCanonicalForm(t *testing.T) {
	res := ValidateIP(netip.MustParseAddr("2001:0db8:0000:0000:0000:0000:0000:0001"), ValidateOptions{})
	assert.Equal(t, "2001:db8::1", res.Canonical)

	res = ValidateIP(netip.MustParseAddr("8.8.8.8"), ValidateOptions{})
	assert.Equal(t, "8.8.8.8", res.Canonical)
}
