// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
	"net"
)

// ServiceInstance is a device found through mDNS/DNS-SD.
type ServiceInstance struct {
	Instance string
	HostName string
	Address  net.IP
	Port     int
}

// HostResolver looks up the network address of a named device.
type HostResolver interface {
	// Lookup resolves a single service instance by name
	Lookup(ctx context.Context, instance string) (*ServiceInstance, error)
}
