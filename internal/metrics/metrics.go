package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/index"
)

// Metrics counts registry operations by outcome.
type Metrics struct {
	operations *prometheus.CounterVec
	onboarded  prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coa_operations_total",
			Help: "Registry operations by operation name and result.",
		}, []string{"operation", "result"}),
		onboarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coa_identities_onboarded_total",
			Help: "Identities created by onboarding.",
		}),
	}
	reg.MustRegister(m.operations, m.onboarded)
	return m
}

// Observe records the outcome of one operation. A nil receiver is a no-op.
func (m *Metrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Result(err)).Inc()
}

// Onboarded counts one new identity.
func (m *Metrics) Onboarded() {
	if m == nil {
		return
	}
	m.onboarded.Inc()
}

// Result buckets an operation error into a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, identity.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, identity.ErrAlreadyOnboarded), errors.Is(err, identity.ErrAlreadyInitialized):
		return "conflict"
	case errors.Is(err, identity.ErrSameAccount), errors.Is(err, index.ErrInvalidShardID):
		return "invalid"
	case errors.Is(err, identity.ErrGroupMismatch):
		return "group_mismatch"
	case errors.Is(err, identity.ErrNotFound):
		return "not_found"
	case errors.Is(err, index.ErrShardFull):
		return "shard_full"
	case errors.Is(err, identity.ErrNotInitialized), errors.Is(err, index.ErrModeMismatch):
		return "not_ready"
	default:
		return "error"
	}
}
