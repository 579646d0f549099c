// Package guacd resolves and dials the downstream connection to the
// guacd daemon: an IP literal is used directly; otherwise the hostname
// is resolved to an IPv4 address.
package guacd

import (
	"context"
	"fmt"
	"net"

	"github.com/sammck-go/guacgw/internal/config"
)

// Dial connects to guacd as configured in cfg.Guacd.
func Dial(ctx context.Context, cfg *config.GuacdConfig) (net.Conn, error) {
	host := cfg.Hostname
	if ip := net.ParseIP(host); ip == nil {
		resolved, err := resolveIPv4(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolving guacd hostname %q: %w", host, err)
		}
		host = resolved
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Port))
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func resolveIPv4(ctx context.Context, host string) (string, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("no IPv4 address found for %q", host)
}
