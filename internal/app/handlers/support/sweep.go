package support

import (
	"context"
	"log/slog"

	"slotkeeper/internal/app/dto"
)

// SweepEach applies fn to every item. A failing item is logged and counted;
// the pass continues with the next one. fn reports whether it changed the item.
func SweepEach[T any](ctx context.Context, logger *slog.Logger, job string, items []T, id func(T) string, fn func(ctx context.Context, item T) (bool, error)) dto.SweepReport {
	if logger == nil {
		logger = slog.Default()
	}
	report := dto.SweepReport{Job: job}
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++
		changed, err := fn(ctx, item)
		if err != nil {
			report.Failed++
			logger.WarnContext(ctx, "sweep item failed", "job", job, "id", id(item), "error", err)
			continue
		}
		if changed {
			report.Changed++
		}
	}
	if report.Changed > 0 || report.Failed > 0 {
		logger.InfoContext(ctx, "sweep finished", "job", job, "scanned", report.Scanned, "changed", report.Changed, "failed", report.Failed)
	}
	return report
}
