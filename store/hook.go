package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
)

// QueryHook counts statements by kind and logs them. The read counter is the
// load counter used to observe cache effectiveness.
type QueryHook struct {
	logger  *slog.Logger
	verbose bool
	reads   *xsync.Counter
	writes  *xsync.Counter
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook creates a hook. With verbose set every statement is logged at
// debug level; failures are logged at warn level regardless.
func NewQueryHook(logger *slog.Logger, verbose bool) *QueryHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHook{
		logger:  logger,
		verbose: verbose,
		reads:   xsync.NewCounter(),
		writes:  xsync.NewCounter(),
	}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	op := event.Operation()
	switch op {
	case "SELECT":
		h.reads.Inc()
	case "INSERT", "UPDATE", "DELETE":
		h.writes.Inc()
	}

	elapsed := time.Since(event.StartTime)
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.WarnContext(ctx, "query failed",
			"operation", op,
			"duration", elapsed,
			"query", event.Query,
			"error", event.Err,
		)
		return
	}
	if h.verbose {
		h.logger.DebugContext(ctx, "query",
			"operation", op,
			"duration", elapsed,
			"query", event.Query,
		)
	}
}

func (h *QueryHook) Reads() int64  { return h.reads.Value() }
func (h *QueryHook) Writes() int64 { return h.writes.Value() }

func (h *QueryHook) Reset() {
	h.reads.Reset()
	h.writes.Reset()
}
