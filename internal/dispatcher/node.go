package dispatcher

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/master-of-zen/ferris-swarm/internal/rpc"
)

// NodeConnection binds one node's address to a counting semaphore whose
// initial permit count is that node's slot allowance (spec.md §3). It is
// shared between the node's per-node worker loop and every in-flight
// send task for that node.
type NodeConnection struct {
	Address string
	Slots   int

	sem        *semaphore.Weighted
	httpClient *http.Client
}

// NewNodeConnection builds a NodeConnection with `slots` concurrent permits.
func NewNodeConnection(address string, slots int) (*NodeConnection, error) {
	if slots < 1 {
		return nil, fmt.Errorf("node %s must have at least 1 slot, got %d", address, slots)
	}

	dialer := &net.Dialer{Timeout: rpc.ConnectTimeout}
	transport := &http.Transport{DialContext: dialer.DialContext}

	return &NodeConnection{
		Address:    address,
		Slots:      slots,
		sem:        semaphore.NewWeighted(int64(slots)),
		httpClient: &http.Client{Transport: transport},
	}, nil
}

// InitializeNodeConnections pairs each node address with its slot count,
// in order. Addresses and slots must have the same length (spec.md §6).
func InitializeNodeConnections(addresses []string, slots []int) ([]*NodeConnection, error) {
	if len(addresses) != len(slots) {
		return nil, fmt.Errorf(
			"mismatch between number of node addresses (%d) and slot counts (%d)",
			len(addresses), len(slots),
		)
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no nodes configured")
	}

	connections := make([]*NodeConnection, 0, len(addresses))
	for i, address := range addresses {
		conn, err := NewNodeConnection(address, slots[i])
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, nil
}

// acquire blocks until a permit is available on this node or ctx is done.
// This is the dispatcher protocol's step 1: "if none are available ...
// wait for one to complete, then retry" — Acquire already blocks exactly
// that way, so no explicit retry loop is needed.
func (n *NodeConnection) acquire(ctx context.Context) error {
	return n.sem.Acquire(ctx, 1)
}

func (n *NodeConnection) release() {
	n.sem.Release(1)
}
