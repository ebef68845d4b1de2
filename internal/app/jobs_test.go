package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type feeMaintainerStub struct {
	updated int64
	err     error
	calls   int
}

func (s *feeMaintainerStub) MarkOverdueFees(ctx context.Context) (int64, error) {
	s.calls++
	return s.updated, s.err
}

func TestMarkOverdueFees_LogsUpdatedCount(t *testing.T) {
	var buf bytes.Buffer
	fees := &feeMaintainerStub{updated: 4}
	jobs := NewJobs(fees, slog.New(slog.NewTextHandler(&buf, nil)))

	jobs.MarkOverdueFees()

	if fees.calls != 1 {
		t.Fatalf("expected one sweep, got %d", fees.calls)
	}
	if !strings.Contains(buf.String(), "updated=4") {
		t.Fatalf("expected updated count in logs, got %q", buf.String())
	}
}

func TestMarkOverdueFees_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	jobs := NewJobs(&feeMaintainerStub{err: errors.New("db down")}, slog.New(slog.NewTextHandler(&buf, nil)))

	jobs.MarkOverdueFees()

	if !strings.Contains(buf.String(), "failed to mark overdue fees") {
		t.Fatalf("expected failure log, got %q", buf.String())
	}
}

func TestServiceMarkOverdueFees_UsesClock(t *testing.T) {
	f := newPaymentFixture()

	updated, err := f.service.MarkOverdueFees(context.Background())
	if err != nil || updated != 3 {
		t.Fatalf("unexpected result %d, %v", updated, err)
	}
	if !f.repo.overdueAsOf.Equal(f.service.now()) {
		t.Fatalf("expected sweep as of service clock, got %s", f.repo.overdueAsOf)
	}
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewScheduler(NewJobs(&feeMaintainerStub{}, logger), logger, "not a schedule")

	if err := scheduler.Start(); err == nil {
		t.Fatal("expected an error for an invalid schedule")
	}
}

func TestScheduler_StartsAndStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewScheduler(NewJobs(&feeMaintainerStub{}, logger), logger, "15 0 * * *")

	if err := scheduler.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-scheduler.Stop().Done()
}
