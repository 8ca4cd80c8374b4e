package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/logger"
)

const (
	defaultLabelBatchSize = 25
	defaultLabelMinAge    = 15 * time.Minute
)

type LabelJobParams struct {
	Logger    *logger.Logger
	Purchaser labelPurchaser
	BatchSize int
	MinAge    time.Duration
}

type labelPurchaser interface {
	PurchasePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// NewLabelJob builds the job that buys carrier labels for paid applications
// still waiting on one. Applications younger than MinAge are left for the
// synchronous label endpoint.
func NewLabelJob(params LabelJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purchaser == nil {
		return nil, fmt.Errorf("label purchaser required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultLabelBatchSize
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultLabelMinAge
	}
	return &labelJob{
		logg:      params.Logger,
		purchaser: params.Purchaser,
		batch:     batch,
		minAge:    minAge,
	}, nil
}

type labelJob struct {
	logg      *logger.Logger
	purchaser labelPurchaser
	batch     int
	minAge    time.Duration
}

func (j *labelJob) Name() string { return "shipping-labels" }

func (j *labelJob) Run(ctx context.Context) error {
	purchased, err := j.purchaser.PurchasePending(ctx, j.minAge, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"min_age":   j.minAge.String(),
		"batch":     j.batch,
		"purchased": purchased,
	})
	if err != nil {
		return fmt.Errorf("purchase pending labels: %w", err)
	}
	j.logg.Info(logCtx, "label purchase batch complete")
	return nil
}
