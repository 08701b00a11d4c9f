package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pion/webrtc/v4"
)

// Default configuration values
const (
	DefaultServer = "http://localhost:3007"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Config holds client configuration
type Config struct {
	// Server is the relay's HTTP base URL.
	Server string

	// WebSocketURL and APIURL are derived from Server.
	WebSocketURL string
	APIURL       string

	// Name is the display name announced to the room.
	Name string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay bool

	// OutputDir receives files shared during a call.
	OutputDir string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server     string
	Name       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	OutputDir  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := firstNonEmpty(opts.Server, os.Getenv("HUDDLE_SERVER"), DefaultServer)
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", server)
	}

	var wsScheme string
	switch base.Scheme {
	case "http", "ws":
		base.Scheme, wsScheme = "http", "ws"
	case "https", "wss":
		base.Scheme, wsScheme = "https", "wss"
	default:
		return nil, fmt.Errorf("unsupported server scheme %q", base.Scheme)
	}

	ws := *base
	ws.Scheme = wsScheme
	ws.Path = strings.TrimRight(base.Path, "/") + "/ws"

	api := *base
	api.Path = strings.TrimRight(base.Path, "/") + "/api"

	name := strings.TrimSpace(firstNonEmpty(opts.Name, os.Getenv("HUDDLE_NAME")))
	if name == "" {
		name = petname.Generate(2, "-")
	}

	outputDir := firstNonEmpty(opts.OutputDir, os.Getenv("HUDDLE_OUTPUT_DIR"), ".")
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		forceRelay = os.Getenv("FORCE_RELAY") == "1" || strings.EqualFold(os.Getenv("FORCE_RELAY"), "true")
	}

	return &Config{
		Server:       base.String(),
		WebSocketURL: ws.String(),
		APIURL:       api.String(),
		Name:         name,
		STUNServer:   firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:   firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:     firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:     firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:   forceRelay,
		OutputDir:    outputDir,
	}, nil
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ICEServers builds the pion ICE server list.
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{c.STUNServer}})
	}
	if turn := c.GetTURNServers(); len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// TransportPolicy is relay-only when ForceRelay is set and a TURN server exists.
func (c *Config) TransportPolicy() webrtc.ICETransportPolicy {
	if c.ForceRelay && c.TURNServer != "" {
		return webrtc.ICETransportPolicyRelay
	}
	return webrtc.ICETransportPolicyAll
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
