// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery resolves the smart plug's address via mDNS (multicast DNS).
//
// Tasmota plugs advertise their web server as "_http._tcp" on the local
// domain using the device hostname as instance name. When the plug's DHCP
// lease changes, resolving the instance again yields the new address, so
// the collector can keep polling without a configuration change.
//
// # Example Usage
//
//	resolver := discovery.NewResolver(discovery.DefaultService, discovery.DefaultDomain, 5*time.Second)
//
//	instance, err := resolver.Lookup(ctx, "delock-0580")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	deviceURL, err := discovery.RewriteURL("http://192.168.178.39/cm?cmnd=Status%2008", instance)
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	apperrors "github.com/soothill/delock-energy-collector/pkg/errors"
	"github.com/soothill/delock-energy-collector/pkg/interfaces"
	"github.com/soothill/delock-energy-collector/pkg/logger"
)

const (
	// DefaultService is the DNS-SD service type Tasmota advertises.
	DefaultService = "_http._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

// Resolver looks up single service instances via mDNS.
type Resolver struct {
	service string
	domain  string
	timeout time.Duration
}

// NewResolver creates a resolver for the given service type and domain.
func NewResolver(service, domain string, timeout time.Duration) *Resolver {
	return &Resolver{
		service: service,
		domain:  domain,
		timeout: timeout,
	}
}

// Lookup resolves instance to an address, waiting at most the resolver timeout.
//
// The zeroconf resolver delivers entries on a channel until its context
// ends. Lookup takes the first entry that carries an address and cancels
// the query.
func (r *Resolver) Lookup(ctx context.Context, instance string) (*interfaces.ServiceInstance, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("mdns resolver", r.domain, err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered so the resolver's mainloop is not blocked while we return
	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Lookup(lookupCtx, instance, r.service, r.domain, entries); err != nil {
		return nil, apperrors.NewNetworkError("mdns lookup", instance, err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil, r.notFound(ctx, instance)
			}
			found := parseServiceEntry(entry)
			if found == nil {
				continue
			}
			logger.Info().
				Str("instance", found.Instance).
				Str("hostname", found.HostName).
				Str("address", found.Address.String()).
				Int("port", found.Port).
				Msg("Resolved device via mDNS")
			return found, nil
		case <-lookupCtx.Done():
			return nil, r.notFound(ctx, instance)
		}
	}
}

func (r *Resolver) notFound(ctx context.Context, instance string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return apperrors.NewTimeoutError("mdns lookup", instance,
		fmt.Errorf("%w: %s.%s%s", apperrors.ErrServiceNotFound, instance, r.service, r.domain))
}

// parseServiceEntry converts a zeroconf service entry to a ServiceInstance
func parseServiceEntry(entry *zeroconf.ServiceEntry) *interfaces.ServiceInstance {
	if entry == nil {
		return nil
	}

	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}

	// Prefer IPv4, fallback to IPv6
	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	return &interfaces.ServiceInstance{
		Instance: entry.Instance,
		HostName: entry.HostName,
		Address:  addr,
		Port:     entry.Port,
	}
}

// RewriteURL replaces the host of raw with the resolved instance address.
// Path, query and scheme are preserved. Port 80 is omitted for http.
func RewriteURL(raw string, inst *interfaces.ServiceInstance) (string, error) {
	if inst == nil || inst.Address == nil {
		return "", fmt.Errorf("%w: no resolved address", apperrors.ErrInvalidValue)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse device url: %w", err)
	}

	host := inst.Address.String()
	defaultPort := (u.Scheme == "http" && inst.Port == 80) || (u.Scheme == "https" && inst.Port == 443)
	switch {
	case inst.Port > 0 && !defaultPort:
		u.Host = net.JoinHostPort(host, strconv.Itoa(inst.Port))
	case inst.Address.To4() == nil:
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	return u.String(), nil
}
