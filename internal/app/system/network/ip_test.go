package network

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{"forwarded chain uses first hop", "203.0.113.7, 10.1.1.1, 10.2.2.2", "", "10.0.0.1:443", "203.0.113.7"},
		{"forwarded hop is trimmed", "  198.51.100.4 ", "", "10.0.0.1:443", "198.51.100.4"},
		{"forwarded beats real ip", "198.51.100.4", "10.9.9.9", "10.0.0.1:443", "198.51.100.4"},
		{"real ip", "", "198.51.100.9", "10.0.0.1:443", "198.51.100.9"},
		{"blank real ip ignored", "", "   ", "172.16.0.3:5000", "172.16.0.3"},
		{"remote host without port", "", "", "172.16.0.3", "172.16.0.3"},
		{"ipv6 remote", "", "", "[2001:db8::1]:8080", "2001:db8::1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/recipes", nil)
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			r.RemoteAddr = tc.remote

			if got := GetClientIP(r); got != tc.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
