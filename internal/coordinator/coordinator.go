package coordinator

import (
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
)

const (
	ProtocolPessimistic = "pessimistic"
	ProtocolOptimistic  = "optimistic"
)

// Options are shared by both protocols.
type Options struct {
	// DeleteOnStop removes the session record once it is stopped. The final view is
	// still returned to the caller.
	DeleteOnStop bool
	Metrics      *metrics.DraftMetrics
}

func outcomeOf(res *draft.Result, attempts int) *domain.Outcome {
	return &domain.Outcome{
		View:     draft.Project(res.Next),
		Removed:  res.Removed,
		NotFound: res.NotFound,
		Attempts: attempts,
	}
}

func stopsAndDeletes(opts Options, req domain.Request) bool {
	return opts.DeleteOnStop && req.Action == domain.ActionStop
}
