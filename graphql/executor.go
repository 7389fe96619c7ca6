package graphql

import (
	"context"
	"log/slog"

	gql "github.com/graphql-go/graphql"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/metric"
	"github.com/Sangrene/flexible-data-relay/schemacache"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Request is one GraphQL request against a tenant's surface.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// ExecutionManager compiles and runs queries against the current cache
// snapshot. The surface is compiled per request, so schema changes become
// visible as soon as the cache applies them.
type ExecutionManager struct {
	cache    *schemacache.Cache
	resolver Resolver
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// Option customizes ExecutionManager construction.
type Option func(*ExecutionManager)

// WithMetrics wires prometheus counters into the manager.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *ExecutionManager) { e.metrics = m }
}

// NewExecutionManager creates the manager. The cache is a constructor-time
// dependency; execution without one fails with ErrTenantCacheNotSet.
func NewExecutionManager(cache *schemacache.Cache, resolver Resolver, logger *slog.Logger, opts ...Option) *ExecutionManager {
	if logger == nil {
		logger = slog.Default()
	}
	e := &ExecutionManager{
		cache:    cache,
		resolver: resolver,
		logger:   logger.With("component", "graphql"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one query over owner's collections as seen by the
// requesting tenant. Resolver errors surface inside the GraphQL result;
// only compilation and wiring failures return a Go error.
func (e *ExecutionManager) Execute(ctx context.Context, owner string, requester *tenant.Tenant, req Request) (*gql.Result, error) {
	if e.cache == nil {
		return nil, errors.WrapFatal(errors.ErrTenantCacheNotSet, "graphql", "Execute", "cache wiring")
	}

	schemas := e.cache.GetAll(owner)
	compiled, err := Compile(owner, requester, schemas, e.resolver)
	if err != nil {
		e.countQuery("compile_error")
		return nil, err
	}

	result := gql.Do(gql.Params{
		Schema:         compiled,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        ctx,
	})

	if result.HasErrors() {
		e.countQuery("error")
		e.logger.Warn("graphql query returned errors",
			"owner", owner, "requester", requesterName(requester), "errors", len(result.Errors))
	} else {
		e.countQuery("ok")
	}
	return result, nil
}

func (e *ExecutionManager) countQuery(outcome string) {
	if e.metrics != nil {
		e.metrics.GraphQLQueries.WithLabelValues(outcome).Inc()
	}
}

func requesterName(t *tenant.Tenant) string {
	if t == nil {
		return ""
	}
	return t.Name
}
