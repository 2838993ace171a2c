// Package resolver implements the reverse-DNS address resolver shared by the
// gathering phases. Lookups go over TCP to a single configured server and
// results are cached for the lifetime of the resolver.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoName is returned when the server has no PTR record for an address.
var ErrNoName = errors.New("no name for address")

const (
	defaultPort    = "53"
	defaultTimeout = 5 * time.Second
)

// Config controls the resolver.
type Config struct {
	// Server is host or host:port of the DNS server; port 53 is assumed.
	Server string
	// Timeout bounds a single dial to the server.
	Timeout time.Duration
	// Logger is optional.
	Logger *zap.Logger
}

type lookupFunc func(ctx context.Context, addr string) ([]string, error)

// RDNS resolves addresses to host names. It is safe for concurrent use.
type RDNS struct {
	server  string
	lookup  lookupFunc
	timeout time.Duration
	logger  *zap.Logger
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

// New builds a resolver that dials cfg.Server over TCP.
func New(cfg Config) (*RDNS, error) {
	server, err := NormalizeServer(cfg.Server)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	netResolver := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, "tcp", server)
		},
	}
	r := newWithLookup(server, netResolver.LookupAddr, logger)
	r.timeout = timeout
	return r, nil
}

func newWithLookup(server string, lookup lookupFunc, logger *zap.Logger) *RDNS {
	return &RDNS{
		server:  server,
		lookup:  lookup,
		timeout: defaultTimeout,
		logger:  logger,
		cache:   make(map[string]string),
	}
}

// Server returns the host:port the resolver talks to.
func (r *RDNS) Server() string {
	return r.server
}

// LookupAddr returns the first PTR name for addr without the trailing dot.
// Concurrent lookups of the same address share one query.
func (r *RDNS) LookupAddr(ctx context.Context, addr string) (string, error) {
	if ip := net.ParseIP(addr); ip == nil {
		return "", fmt.Errorf("lookup %q: not an IP address", addr)
	}
	if name, ok := r.cached(addr); ok {
		if name == "" {
			return "", ErrNoName
		}
		return name, nil
	}
	// The shared query runs detached from the first caller's ctx; each caller
	// stops waiting when its own ctx ends.
	ch := r.group.DoChan(addr, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		names, err := r.lookup(qctx, addr)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				r.store(addr, "")
				return "", ErrNoName
			}
			return "", fmt.Errorf("reverse lookup %s: %w", addr, err)
		}
		if len(names) == 0 {
			r.store(addr, "")
			return "", ErrNoName
		}
		name := strings.TrimSuffix(names[0], ".")
		r.store(addr, name)
		return name, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("reverse lookup %s: %w", addr, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		r.logger.Debug("reverse lookup failed", zap.String("addr", addr), zap.Error(res.Err))
		return "", res.Err
	}
	name, _ := res.Val.(string)
	return name, nil
}

func (r *RDNS) cached(addr string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.cache[addr]
	return name, ok
}

func (r *RDNS) store(addr, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[addr] = name
}

// NormalizeServer turns "host", "host:port", "[v6]:port" or a bare IPv6
// address into a dialable host:port, defaulting the port to 53.
func NormalizeServer(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", errors.New("resolver server is required")
	}
	if host, port, err := net.SplitHostPort(server); err == nil {
		if host == "" {
			return "", fmt.Errorf("resolver server %q has no host", server)
		}
		return net.JoinHostPort(host, port), nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(server, "["), "]")
	return net.JoinHostPort(host, defaultPort), nil
}
