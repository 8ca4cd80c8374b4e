package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/logger"
)

type fakePurchaser struct {
	olderThan time.Duration
	limit     int
	purchased int
	err       error
	calls     int
}

func (f *fakePurchaser) PurchasePending(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	f.calls++
	f.olderThan = olderThan
	f.limit = limit
	return f.purchased, f.err
}

func newTestLabelJob(t *testing.T, purchaser *fakePurchaser, params LabelJobParams) *labelJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	params.Purchaser = purchaser
	jobIface, err := NewLabelJob(params)
	if err != nil {
		t.Fatalf("NewLabelJob: %v", err)
	}
	job, ok := jobIface.(*labelJob)
	if !ok {
		t.Fatalf("expected labelJob, got %T", jobIface)
	}
	return job
}

func TestLabelJobPassesMinAgeAndBatch(t *testing.T) {
	purchaser := &fakePurchaser{purchased: 3}
	job := newTestLabelJob(t, purchaser, LabelJobParams{BatchSize: 10, MinAge: 30 * time.Minute})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purchaser.olderThan != 30*time.Minute {
		t.Fatalf("unexpected cutoff %s", purchaser.olderThan)
	}
	if purchaser.limit != 10 {
		t.Fatalf("expected limit 10, got %d", purchaser.limit)
	}
}

func TestLabelJobDefaults(t *testing.T) {
	purchaser := &fakePurchaser{}
	job := newTestLabelJob(t, purchaser, LabelJobParams{})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purchaser.limit != defaultLabelBatchSize {
		t.Fatalf("expected default batch, got %d", purchaser.limit)
	}
	if purchaser.olderThan != defaultLabelMinAge {
		t.Fatalf("unexpected cutoff %s", purchaser.olderThan)
	}
}

func TestLabelJobPropagatesErrors(t *testing.T) {
	purchaser := &fakePurchaser{purchased: 1, err: errors.New("carrier down")}
	job := newTestLabelJob(t, purchaser, LabelJobParams{})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewLabelJobRequiresPurchaser(t *testing.T) {
	if _, err := NewLabelJob(LabelJobParams{Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard})}); err == nil {
		t.Fatal("expected error")
	}
}
