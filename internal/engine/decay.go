package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/factgraph/internal/prune"
	"github.com/lazypower/factgraph/internal/store"
)

// RunDecay applies one decay step and logs the resulting store heat.
func (e *Engine) RunDecay(ctx context.Context) (*store.DecayReport, error) {
	report, err := e.DB.Decay(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("decay: %w", err)
	}

	fields := []zap.Field{
		zap.Int64("decayed", report.Decayed),
		zap.Int64("null_initialized", report.NullInitialized),
		zap.Bool("column_added", report.ColumnAdded),
	}
	if stats, err := e.DB.Stats(ctx); err == nil {
		fields = append(fields,
			zap.Int("hot", stats.Hot),
			zap.Int("cold", stats.Cold),
			zap.Float64("avg_score", stats.AvgScore))
	}
	e.Logger.Info("decay run", fields...)
	return report, nil
}

// RunPrune makes one pruning pass over the workspace's daily logs.
func (e *Engine) RunPrune() (*prune.Report, error) {
	p, err := prune.New(e.workspace, e.Logger)
	if err != nil {
		return nil, err
	}
	if e.previewLimit > 0 {
		p.PreviewLimit = e.previewLimit
	}
	p.Now = e.Now

	report, err := p.Run(false)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	e.Logger.Info("prune run",
		zap.Int("pruned", report.TotalPruned),
		zap.Int("files_modified", report.FilesModified),
		zap.Int("promotion_candidates", len(report.Promoted)))
	for _, c := range report.Preview() {
		e.Logger.Info("promotion candidate",
			zap.String("type", c.Type),
			zap.String("date", c.Date),
			zap.String("content", c.Content))
	}
	return report, nil
}
