// Package config loads the "<ip> <port>" file shared by the agent and the controller.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultPath is where both binaries look for the config file unless told otherwise.
const DefaultPath = "ip.config"

var ErrInvalid = errors.New("invalid config")

// Config is loaded once at startup and never changes afterwards.
type Config struct {
	IP   string
	Port string
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(b)
}

// Parse reads two whitespace-separated tokens, an IP address or host name and a port.
// Anything after the second token is ignored.
func Parse(b []byte) (*Config, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: not UTF-8 text", ErrInvalid)
	}
	fields := strings.Fields(string(b))
	if len(fields) < 1 {
		return nil, fmt.Errorf("%w: no IP address", ErrInvalid)
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: no port", ErrInvalid)
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: bad port %q", ErrInvalid, fields[1])
	}
	return &Config{IP: fields[0], Port: fields[1]}, nil
}

// Addr returns the host:port address the controller listens on and the agent dials.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.IP, c.Port)
}

// URL returns the WebSocket URL of the controller endpoint at path.
func (c *Config) URL(path string) string {
	u := url.URL{Scheme: "ws", Host: c.Addr(), Path: path}
	return u.String()
}
