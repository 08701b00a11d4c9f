// Package discovery announces relays on the local network over mDNS and
// lets clients find them without knowing an address up front.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service relays register under.
const ServiceType = "_huddle._tcp"

const domain = "local."

// Relay is a relay found on the local network.
type Relay struct {
	Instance string
	Host     string
	Addr     net.IP
	Port     int
	Version  string
}

// URL returns the HTTP base URL clients should use for this relay.
func (r Relay) URL() string {
	host := r.Host
	if r.Addr != nil {
		host = r.Addr.String()
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(strings.TrimSuffix(host, "."), fmt.Sprint(r.Port)))
}

// Advertise registers the relay on every interface. The returned function
// withdraws the announcement.
func Advertise(instance string, port int, version string) (func(), error) {
	txt := []string{"version=" + version}
	server, err := zeroconf.Register(instance, ServiceType, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("advertise %s: %w", instance, err)
	}
	return server.Shutdown, nil
}

// Browse collects relays answering within timeout, sorted by instance name.
func Browse(ctx context.Context, timeout time.Duration) ([]Relay, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	seen := make(map[string]Relay)
	for {
		select {
		case <-ctx.Done():
			return sortRelays(seen), nil
		case entry, ok := <-entries:
			if !ok {
				return sortRelays(seen), nil
			}
			if entry == nil {
				continue
			}
			seen[entry.Instance] = relayFromEntry(entry)
		}
	}
}

func relayFromEntry(entry *zeroconf.ServiceEntry) Relay {
	r := Relay{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
	}
	if len(entry.AddrIPv4) > 0 {
		r.Addr = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		r.Addr = entry.AddrIPv6[0]
	}
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "version="); ok {
			r.Version = v
		}
	}
	return r
}

func sortRelays(seen map[string]Relay) []Relay {
	out := make([]Relay, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
