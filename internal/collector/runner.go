package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandscope/intel-cli/internal/model"
)

// Progress is invoked exactly once per (entity, source) completion, whether
// the payload is live or fallback.
type Progress func(entityID string, kind model.SourceKind, payload *model.SourcePayload)

// Runner fans collection for one entity out across its requested sources.
// Per-source failures never propagate: a failed collector contributes its
// Mock payload tagged fallback_error, so every requested source always
// yields a payload and the job's progress accounting cannot stall.
type Runner struct {
	collectors map[model.SourceKind]Collector
	// MaxConcurrent bounds concurrent sources per entity. Zero means all at once.
	MaxConcurrent int
}

// NewRunner creates a Runner over the given collectors.
func NewRunner(collectors ...Collector) *Runner {
	m := make(map[model.SourceKind]Collector, len(collectors))
	for _, c := range collectors {
		m[c.Kind()] = c
	}
	return &Runner{collectors: m}
}

// Has reports whether a collector is registered for kind.
func (r *Runner) Has(kind model.SourceKind) bool {
	_, ok := r.collectors[kind]
	return ok
}

// Run collects all requested kinds for one entity concurrently. The returned
// bundle has an entry for every requested kind. The only error returned is
// context cancellation.
func (r *Runner) Run(ctx context.Context, entityID, areaID string, kinds []model.SourceKind, onDone Progress) (model.EntitySignalBundle, error) {
	bundle := make(model.EntitySignalBundle, len(kinds))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	if r.MaxConcurrent > 0 {
		g.SetLimit(r.MaxConcurrent)
	}

	for _, kind := range kinds {
		col, ok := r.collectors[kind]
		if !ok {
			return nil, eris.Errorf("collector: no collector registered for %s", kind)
		}

		g.Go(func() error {
			payload := r.collectOne(gCtx, col, entityID, areaID)

			mu.Lock()
			bundle[kind] = payload
			mu.Unlock()

			if onDone != nil {
				onDone(entityID, kind, payload)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return bundle, err
	}
	return bundle, ctx.Err()
}

func (r *Runner) collectOne(ctx context.Context, col Collector, entityID, areaID string) *model.SourcePayload {
	start := time.Now()
	payload, err := col.Collect(ctx, entityID, areaID)
	if err != nil {
		zap.L().Warn("collector: live collection failed, using error fallback",
			zap.String("entity", entityID),
			zap.String("source", string(col.Kind())),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		payload = col.Mock(entityID)
		payload.Provenance = model.ProvenanceFallbackError
		return payload
	}

	zap.L().Info("collector: source complete",
		zap.String("entity", entityID),
		zap.String("source", string(col.Kind())),
		zap.String("provenance", string(payload.Provenance)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return payload
}
