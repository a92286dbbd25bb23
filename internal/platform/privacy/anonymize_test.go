package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4", "192.168.1.47", "192.168.1.0/24"},
		{"ipv4 network address", "10.0.0.0", "10.0.0.0/24"},
		{"ipv4 localhost", "127.0.0.1", "127.0.0.0/24"},
		{"ipv6", "2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::/48"},
		{"ipv6 loopback", "::1", "::/48"},
		{"ipv4 mapped ipv6", "::ffff:192.168.1.47", "192.168.1.0/24"},
		{"empty", "", "unknown"},
		{"unknown marker", "unknown", "unknown"},
		{"garbage", "not-an-ip", "invalid"},
		{"ipv4 with port", "192.168.1.47:8080", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskIP(tt.input))
		})
	}
}
