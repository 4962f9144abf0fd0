// Package discovery advertises and locates constellation instances on
// the local network via mDNS, falling back to a small scan of common
// addresses when mDNS yields nothing (spec.md §4.8).
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/rpc"
)

const (
	serviceType = "_ferris-swarm._tcp"
	domain      = "local"

	// totalDiscoveryBudget, queryTimeout, and fallbackBudget split
	// spec.md §5's 5 s discovery budget: 3 s for the mDNS query phase,
	// leaving the remaining 2 s for fallbackScan's health probes.
	totalDiscoveryBudget = 5 * time.Second
	queryTimeout         = 3 * time.Second
	fallbackBudget       = totalDiscoveryBudget - queryTimeout

	healthTimeout = 500 * time.Millisecond
)

// Candidate is one discovered or probed {host, port} pair.
type Candidate struct {
	Host string
	Port int
}

// URL formats the candidate as a constellation base URL.
func (c Candidate) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// Advertiser announces the constellation service on the local link.
type Advertiser struct {
	hostname string
	port     int
	log      *logrus.Logger
}

// NewAdvertiser builds an Advertiser for the constellation's own hostname/port.
func NewAdvertiser(hostname string, port int, log *logrus.Logger) *Advertiser {
	return &Advertiser{hostname: hostname, port: port, log: log}
}

// Run starts the mDNS responder and blocks until stop is closed.
func (a *Advertiser) Run(stop <-chan struct{}) error {
	service, err := mdns.NewMDNSService(a.hostname, serviceType, "", "", a.port, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to build mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to start mdns server: %w", err)
	}
	defer func() { _ = server.Shutdown() }()

	a.log.WithFields(logrus.Fields{"hostname": a.hostname, "port": a.port}).Info("advertising constellation via mDNS")

	<-stop
	return nil
}

// Discover resolves the constellation's base URL: explicit override, else
// mDNS, else a fallback scan (spec.md §4.5, §4.8).
func Discover(ctx context.Context, override string, log *logrus.Logger) (string, error) {
	if override != "" {
		return override, nil
	}

	if candidate, ok := discoverMDNS(ctx, log); ok {
		return candidate.URL(), nil
	}

	if candidate, ok := fallbackScan(ctx, log); ok {
		return candidate.URL(), nil
	}

	return "http://localhost:3030", nil
}

// discoverMDNS issues a multicast query and returns the first candidate
// that passes a health check.
func discoverMDNS(ctx context.Context, log *logrus.Logger) (Candidate, bool) {
	entries := make(chan *mdns.ServiceEntry, 16)
	params := &mdns.QueryParam{
		Service: serviceType,
		Domain:  domain,
		Timeout: queryTimeout,
		Entries: entries,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := mdns.Query(params); err != nil {
			log.WithError(err).Debug("mdns query failed")
		}
		// Query does not close Entries; closing it here ends the range
		// below once the query timeout has passed.
		close(entries)
	}()

	var found Candidate
	ok := false
	for entry := range entries {
		host := entry.Host
		if entry.AddrV4 != nil {
			host = entry.AddrV4.String()
		}
		candidate := Candidate{Host: host, Port: entry.Port}
		if probeHealth(ctx, candidate, healthTimeout) {
			found, ok = candidate, true
			break
		}
	}
	<-done
	return found, ok
}

// fallbackScan probes a short, fixed list of common local addresses:
// localhost, the "constellation" hostname, and five last-octet guesses
// within the caller's local /24 (spec.md §4.8). The whole scan is bounded
// to fallbackBudget, the discovery budget left over after the mDNS query
// phase, so a run of unresponsive candidates can't blow past spec.md §5's
// overall 5 s discovery ceiling.
func fallbackScan(ctx context.Context, log *logrus.Logger) (Candidate, bool) {
	const defaultPort = 3030

	scanCtx, cancel := context.WithTimeout(ctx, fallbackBudget)
	defer cancel()

	candidates := []Candidate{
		{Host: "127.0.0.1", Port: defaultPort},
		{Host: "constellation", Port: defaultPort},
	}

	if base, ok := localIPv4Base(); ok {
		for _, lastOctet := range []int{1, 10, 100, 101, 200} {
			candidates = append(candidates, Candidate{Host: fmt.Sprintf("%s.%d", base, lastOctet), Port: defaultPort})
		}
	}

	for _, candidate := range candidates {
		if scanCtx.Err() != nil {
			break
		}
		if probeHealth(scanCtx, candidate, healthTimeout) {
			log.WithField("address", candidate.URL()).Info("found constellation via fallback discovery")
			return candidate, true
		}
	}
	return Candidate{}, false
}

// localIPv4Base returns the first three octets of the first non-loopback
// IPv4 address found on this host.
func localIPv4Base() (string, bool) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		return fmt.Sprintf("%d.%d.%d", ip4[0], ip4[1], ip4[2]), true
	}
	return "", false
}

// probeHealth verifies a candidate actually answers the health endpoint.
// It is bounded by both timeout and ctx, whichever elapses first, so a
// caller enforcing an overall scan budget (fallbackScan) can cut a probe
// short instead of letting every candidate spend its full timeout.
func probeHealth(ctx context.Context, candidate Candidate, timeout time.Duration) bool {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, candidate.URL()+rpc.HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
