// Package consulkv is the Consul-backed system adapter: one JSON value
// per entity under <prefix>/<namespace>/<type>/<name>.
//
// All KV round trips run behind a circuit breaker so a flapping Consul
// agent fails fast instead of stalling the whole sync pass.
package consulkv

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/consul/api"
	"github.com/sony/gobreaker"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Adapter talks to one Consul agent's KV store.
type Adapter struct {
	name    string
	prefix  string
	client  *api.Client
	breaker *gobreaker.CircuitBreaker
}

// New connects to the Consul agent at address. An empty address uses the
// standard CONSUL_HTTP_ADDR resolution.
func New(name, address, prefix string) (*Adapter, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, cerr.Wrap(err, "failed to create consul client")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "consul-kv:" + name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Adapter{
		name:    name,
		prefix:  strings.Trim(prefix, "/"),
		client:  client,
		breaker: breaker,
	}, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) namespacePrefix(namespace string) string {
	return fmt.Sprintf("%s/%s/", a.prefix, namespace)
}

// FetchEntities lists the namespace subtree and decodes each value.
func (a *Adapter) FetchEntities(rc *metis_io.RuntimeContext, namespace string) ([]entity.State, error) {
	logger := otelzap.Ctx(rc.Ctx)
	nsPrefix := a.namespacePrefix(namespace)

	raw, err := a.breaker.Execute(func() (interface{}, error) {
		pairs, _, err := a.client.KV().List(nsPrefix, (&api.QueryOptions{}).WithContext(rc.Ctx))
		return pairs, err
	})
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to list consul subtree %s", nsPrefix)
	}
	pairs, _ := raw.(api.KVPairs)

	var states []entity.State
	observedAt := time.Now().UTC()
	for _, pair := range pairs {
		rel := strings.TrimPrefix(pair.Key, nsPrefix)
		parts := strings.Split(rel, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			logger.Warn("Skipping malformed consul key", zap.String("key", pair.Key))
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(pair.Value, &fields); err != nil {
			return nil, cerr.Wrapf(err, "failed to decode consul value at %s", pair.Key)
		}

		states = append(states, entity.State{
			Ref:          entity.Ref{Namespace: namespace, Type: parts[0], Name: parts[1]},
			Fields:       entity.Fields(fields),
			SourceSystem: a.name,
			ObservedAt:   observedAt,
			Revision:     fmt.Sprintf("%d", pair.ModifyIndex),
		})
	}

	logger.Debug("Consul KV fetched",
		zap.String("adapter", a.name),
		zap.String("namespace", namespace),
		zap.Int("entities", len(states)))
	return states, nil
}

// ApplyEntity writes one entity value.
func (a *Adapter) ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error {
	value, err := json.Marshal(map[string]any(state.Fields))
	if err != nil {
		return cerr.Wrap(err, "failed to encode entity value")
	}

	key := fmt.Sprintf("%s%s/%s", a.namespacePrefix(state.Ref.Namespace), state.Ref.Type, state.Ref.Name)
	_, err = a.breaker.Execute(func() (interface{}, error) {
		_, perr := a.client.KV().Put(&api.KVPair{Key: key, Value: value}, (&api.WriteOptions{}).WithContext(rc.Ctx))
		return nil, perr
	})
	if err != nil {
		return cerr.Wrapf(err, "failed to write consul key %s", key)
	}
	return nil
}
