package v1

import (
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// proxyHeaders are consulted, in order, after X-Forwarded-For
var proxyHeaders = []string{"X-Real-IP", "CF-Connecting-IP", "True-Client-IP"}

// clientIP returns the first public address found in the proxy headers or the
// connection itself. It only feeds the excluded-IP check and is never stored;
// an empty result means nothing matched and the visit is not excluded.
func clientIP(c *fiber.Ctx) string {
	candidates := strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")
	for _, header := range proxyHeaders {
		candidates = append(candidates, c.Get(header))
	}
	candidates = append(candidates, c.Context().RemoteAddr().String())

	for _, raw := range candidates {
		if addr, ok := parseAddr(raw); ok && isPublic(addr) {
			return addr.String()
		}
	}
	return ""
}

// parseAddr accepts bare addresses, addr:port, bracketed IPv6 and zoned IPv6
func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), "\"")
	if raw == "" {
		return netip.Addr{}, false
	}

	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().WithZone("").Unmap(), true
	}

	addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsUnspecified()
}
