package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
)

type OverdueSweepJobParams struct {
	Logger *logger.Logger
	Laybys overdueMarker
}

type overdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// NewOverdueSweepJob flags laybys whose next installment date has passed.
func NewOverdueSweepJob(params OverdueSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Laybys == nil {
		return nil, fmt.Errorf("layby service required")
	}
	return &overdueSweepJob{
		logg:   params.Logger,
		laybys: params.Laybys,
		now:    time.Now,
	}, nil
}

type overdueSweepJob struct {
	logg   *logger.Logger
	laybys overdueMarker
	now    func() time.Time
}

func (j *overdueSweepJob) Name() string { return "layby-overdue-sweep" }

func (j *overdueSweepJob) Run(ctx context.Context) error {
	asOf := j.now().UTC()
	flipped, err := j.laybys.MarkOverdue(ctx, asOf)
	if err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":          asOf,
		"laybys_flipped": flipped,
	})
	j.logg.Info(logCtx, "overdue sweep complete")
	return nil
}
