package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"
)

// DNS-SD parameters.
const (
	ServiceType = "_relay._tcp"
	Domain      = "local."

	// BrowseTimeout is the default time FindRelay waits for an answer.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyPath     = "path"
	TXTKeyTLS      = "tls"
	TXTKeyProtocol = "proto"
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("no relay found")
	ErrInvalidPort         = errors.New("invalid relay port")
	ErrInstanceNameTooLong = errors.New("instance name too long")
)

// RelayEndpoint is a relay found on the network.
type RelayEndpoint struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Path     string
	TLS      bool
	Protocol string
}

// URL returns the websocket URL of the relay. The first address is preferred
// over the host name.
func (e *RelayEndpoint) URL() string {
	host := e.Host
	if len(e.Addresses) > 0 {
		host = e.Addresses[0]
	}
	scheme := "ws"
	if e.TLS {
		scheme = "wss"
	}
	path := e.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(int(e.Port))),
		Path:   path,
	}
	return u.String()
}

// RelayInfo is what a relay advertises.
type RelayInfo struct {
	InstanceName string
	Port         uint16
	Path         string
	TLS          bool
	Protocol     string
}
