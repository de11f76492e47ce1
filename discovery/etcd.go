package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Etcd discovers broker endpoints registered under a key prefix in etcd,
// the same "distributed phonebook" technique the teacher's EtcdRegistry
// uses for RPC server instances — but read-only: a STOMP client has no
// Register/Deregister side, since it is not itself a discoverable service.
type Etcd struct {
	client  *clientv3.Client
	cluster string
}

// NewEtcd creates a discovery source connected to the given etcd
// endpoints, resolving brokers registered under /stompclient/{cluster}/.
func NewEtcd(endpoints []string, cluster string) (*Etcd, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &Etcd{client: c, cluster: cluster}, nil
}

func (e *Etcd) prefix() string {
	return "/stompclient/" + e.cluster + "/"
}

// Discover implements Discovery by listing every key under the cluster's
// prefix and decoding its JSON-encoded Server value, skipping malformed
// entries rather than failing the whole lookup.
func (e *Etcd) Discover(ctx context.Context) ([]Server, error) {
	resp, err := e.client.Get(ctx, e.prefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discovery: etcd get: %w", err)
	}

	servers := make([]Server, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var s Server
		if err := json.Unmarshal(kv.Value, &s); err != nil {
			continue
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// Watch implements Discovery using etcd's push-based Watch API: on any
// change under the prefix, the full server list is re-fetched and
// emitted, mirroring the teacher's EtcdRegistry.Watch.
func (e *Etcd) Watch(ctx context.Context) (<-chan []Server, error) {
	out := make(chan []Server, 1)
	watchChan := e.client.Watch(ctx, e.prefix(), clientv3.WithPrefix())

	go func() {
		defer close(out)
		for range watchChan {
			servers, err := e.Discover(ctx)
			if err != nil {
				continue
			}
			select {
			case out <- servers:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases the underlying etcd client.
func (e *Etcd) Close() error {
	return e.client.Close()
}
