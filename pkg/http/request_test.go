package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	trusted := &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	tests := []struct {
		name       string
		remoteAddr string
		config     *IPConfig
		headers    map[string]string
		want       string
	}{
		{
			name:       "plain remote addr",
			remoteAddr: "203.0.113.7:51234",
			config:     trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from trusted proxy",
			remoteAddr: "10.1.2.3:443",
			config:     trusted,
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.1.2.3"},
			want:       "198.51.100.4",
		},
		{
			name:       "forwarded header from untrusted source ignored",
			remoteAddr: "203.0.113.7:51234",
			config:     trusted,
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "203.0.113.7",
		},
		{
			name:       "real ip header from trusted proxy",
			remoteAddr: "10.1.2.3:443",
			config:     trusted,
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			want:       "198.51.100.9",
		},
		{
			name:       "garbage forwarded entries skipped",
			remoteAddr: "10.1.2.3:443",
			config:     trusted,
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip, 198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "nil config never trusts headers",
			remoteAddr: "10.1.2.3:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "10.1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, ExtractClientIP(req, tt.config))
		})
	}
}
