package v1

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "79.144.65.173", want: "79.144.65.173"},
		{name: "padded and quoted", raw: " \"79.144.65.173\" ", want: "79.144.65.173"},
		{name: "ipv4 with port", raw: "79.144.65.173:443", want: "79.144.65.173"},
		{name: "ipv6 in brackets", raw: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 with port", raw: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{name: "ipv6 with zone", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "ipv4 mapped ipv6", raw: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "garbage", raw: "not-an-ip", want: ""},
		{name: "blank", raw: "   ", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, ok := parseAddr(tc.raw)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, addr.String())
		})
	}
}

func TestClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(clientIP(c))
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "skips private hops in X-Forwarded-For",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.4, 198.51.100.23"},
			want:    "198.51.100.23",
		},
		{
			name:    "falls back to X-Real-IP",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.10", "X-Real-IP": "203.0.113.5"},
			want:    "203.0.113.5",
		},
		{
			name:    "reads Cloudflare header",
			headers: map[string]string{"CF-Connecting-IP": "2001:db8::7"},
			want:    "2001:db8::7",
		},
		{
			name:    "loopback only resolves to nothing",
			headers: map[string]string{"X-Forwarded-For": "127.0.0.1", "X-Real-IP": "::1"},
			want:    "",
		},
		{
			name: "no headers resolves to nothing",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}
