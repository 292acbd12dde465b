package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures an MDNSAdvertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	Interface string

	// TTL overrides the record TTL.
	TTL time.Duration
}

// MDNSAdvertiser announces relays over mDNS.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance name
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// AdvertiseRelay starts announcing info, replacing an earlier announcement
// with the same instance name.
func (a *MDNSAdvertiser) AdvertiseRelay(info *RelayInfo) error {
	if err := ValidateInstanceName(info.InstanceName); err != nil {
		return err
	}
	if info.Port == 0 {
		return ErrInvalidPort
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.servers[info.InstanceName]; ok {
		old.Shutdown()
		delete(a.servers, info.InstanceName)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.InstanceName,
		ServiceType,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeRelayTXT(info)),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("register relay service: %w", err)
	}
	a.servers[info.InstanceName] = server
	return nil
}

// StopRelay stops announcing the named instance.
func (a *MDNSAdvertiser) StopRelay(instanceName string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if server, ok := a.servers[instanceName]; ok {
		server.Shutdown()
		delete(a.servers, instanceName)
	}
}

// StopAll stops every announcement.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{
		config:  config,
		cancels: make(map[int]context.CancelFunc),
	}
}

// BrowseRelays implements Browser. Entries for the same instance seen on
// several interfaces are merged; each relay is emitted once.
func (b *MDNSBrowser) BrowseRelays(ctx context.Context) (<-chan *RelayEndpoint, error) {
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()

	out := make(chan *RelayEndpoint)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		removed := (<-chan *zeroconf.ServiceEntry)(removed)
		defer close(out)
		defer b.forget(id)

		relays := make(map[string]*RelayEndpoint)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				e, err := entryToRelay(entry)
				if err != nil {
					continue
				}
				if existing, found := relays[e.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, e.Addresses)
					continue
				}
				tracked := *e
				tracked.Addresses = append([]string(nil), e.Addresses...)
				relays[e.InstanceName] = &tracked
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := relays[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entryAddresses(entry))
					if len(existing.Addresses) == 0 {
						delete(relays, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// Stop cancels every browse started by b.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *MDNSBrowser) forget(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// interfaces returns the named interface, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func entryToRelay(entry *zeroconf.ServiceEntry) (*RelayEndpoint, error) {
	return newRelayEndpoint(entry.Instance, entry.HostName, entry.Port, entry.Text, entryAddresses(entry))
}

func newRelayEndpoint(instance, host string, port int, text []string, addrs []string) (*RelayEndpoint, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	e := &RelayEndpoint{
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
	}
	DecodeRelayTXT(StringsToTXTRecords(text), e)
	return e, nil
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}

var _ Browser = (*MDNSBrowser)(nil)
