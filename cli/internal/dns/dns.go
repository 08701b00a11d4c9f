// Package dns resolves relay hostnames, falling back to public resolvers when
// the system resolver fails (captive portals, broken VPN split-DNS).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var fallbackServers = []string{
	"1.1.1.1",
	"1.0.0.1",
	"8.8.8.8",
	"8.8.4.4",
	"9.9.9.9",
	"[2606:4700:4700::1111]",
	"[2001:4860:4860::8888]",
}

const (
	systemTimeout   = time.Second
	fallbackTimeout = 2 * time.Second
)

var errNoAddress = errors.New("no addresses found")

// Lookup resolves host to a single address, preferring IPv4. IP literals and
// mDNS names are returned or resolved locally only.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.String(), nil
	}

	ip, err := lookupWith(ctx, &net.Resolver{}, host, systemTimeout)
	if err == nil {
		return ip, nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".local.") {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}

	log.Debug().Err(err).Str("host", host).Msg("System DNS failed, racing public resolvers")
	return race(ctx, host)
}

// DialContext resolves the host part of addr with Lookup and dials it. It
// fits websocket.Dialer.NetDialContext and http.Transport.DialContext.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func race(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fallbackTimeout)
	defer cancel()

	type result struct {
		ip  string
		err error
	}
	results := make(chan result, len(fallbackServers))
	for _, server := range fallbackServers {
		go func(server string) {
			ip, err := lookupWith(ctx, pinned(server), host, fallbackTimeout)
			results <- result{ip, err}
		}(server)
	}

	for range fallbackServers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public resolvers timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, len(fallbackServers))
}

// pinned returns a resolver that only talks to server on port 53.
func pinned(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(strings.Trim(server, "[]"), "53"))
		},
	}
}

func lookupWith(ctx context.Context, r *net.Resolver, host string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(addrs)
}

func preferIPv4(addrs []string) (string, error) {
	if len(addrs) == 0 {
		return "", errNoAddress
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}
