package dns

import (
	"context"
	"net"
	"testing"
)

func TestLookup_IPLiteral(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::1", "[::1]"} {
		got, err := Lookup(context.Background(), host)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", host, err)
		}
		if net.ParseIP(got) == nil {
			t.Fatalf("Lookup(%q)=%q, want an IP", host, got)
		}
	}
}

func TestPreferIPv4(t *testing.T) {
	got, err := preferIPv4([]string{"2001:db8::1", "192.0.2.7"})
	if err != nil || got != "192.0.2.7" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = preferIPv4([]string{"2001:db8::1"})
	if err != nil || got != "2001:db8::1" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := preferIPv4(nil); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestDialContext_Loopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	conn, err := DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}
