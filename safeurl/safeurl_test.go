package safeurl

import (
	"net"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://www.nadirkitap.com/ara", false},
		{"http://example.com/kitap", false},
		{"ftp://evil.com/data", true},      // bad scheme
		{"javascript:alert(1)", true},      // bad scheme
		{"http://127.0.0.1/admin", true},   // loopback
		{"http://10.0.0.1/internal", true}, // private
		{"http://192.168.1.1/api", true},   // private
		{"http://[::1]/api", true},         // IPv6 loopback
		{"http://172.16.0.1/secret", true}, // private
	}
	for _, tt := range tests {
		err := Validate(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.10.10", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %q", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
