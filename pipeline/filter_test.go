package pipeline

import (
	"context"
	"testing"
	"time"

	appconfig "convertflow/config"
	"convertflow/internal/channel/convert"
	"convertflow/models"
)

func newTestFilter(t *testing.T, window time.Duration) (*RequestFilter, *convert.Channels, context.CancelFunc) {
	t.Helper()

	cfg := &appconfig.Config{
		Pipeline: appconfig.PipelineConfig{DebounceWindow: window},
	}
	channels := convert.NewChannels(16, 16)
	filter := NewRequestFilter(cfg, channels)

	ctx, cancel := context.WithCancel(context.Background())
	if err := filter.Start(ctx); err != nil {
		t.Fatalf("failed to start filter: %v", err)
	}

	return filter, channels, cancel
}

func waitCommitted(t *testing.T, ch <-chan models.CommittedRequest, timeout time.Duration) models.CommittedRequest {
	t.Helper()
	select {
	case committed := <-ch:
		return committed
	case <-time.After(timeout):
		t.Fatalf("no committed request within %s", timeout)
		return models.CommittedRequest{}
	}
}

func assertNoCommit(t *testing.T, ch <-chan models.CommittedRequest, timeout time.Duration) {
	t.Helper()
	select {
	case committed := <-ch:
		t.Fatalf("unexpected commit: %+v", committed)
	case <-time.After(timeout):
	}
}

func TestFilterDebounceLastWins(t *testing.T) {
	filter, channels, cancel := newTestFilter(t, 80*time.Millisecond)
	defer cancel()
	defer filter.Stop()

	for _, amount := range []float64{97, 98, 99, 100} {
		channels.Raw <- models.ConversionRequest{From: "USD", To: "EUR", Amount: amount, Direction: models.SideSource}
	}

	committed := waitCommitted(t, channels.Committed, time.Second)
	if committed.Request.Amount != 100 {
		t.Fatalf("expected last request of the burst, got amount %v", committed.Request.Amount)
	}
	if committed.ID == "" {
		t.Fatalf("committed request should carry an id")
	}

	assertNoCommit(t, channels.Committed, 200*time.Millisecond)
}

func TestFilterDuplicateDropped(t *testing.T) {
	filter, channels, cancel := newTestFilter(t, 50*time.Millisecond)
	defer cancel()
	defer filter.Stop()

	req := models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}
	channels.Raw <- req

	waitCommitted(t, channels.Committed, time.Second)

	// The same structural request again must not produce a second commit.
	channels.Raw <- req
	assertNoCommit(t, channels.Committed, 200*time.Millisecond)
}

func TestFilterDuplicateDoesNotExtendWindow(t *testing.T) {
	filter, channels, cancel := newTestFilter(t, 200*time.Millisecond)
	defer cancel()
	defer filter.Stop()

	req := models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}
	channels.Raw <- req

	time.Sleep(100 * time.Millisecond)
	channels.Raw <- req

	// Without the duplicate extending the window the commit lands roughly
	// 100ms after the repeat; an extended window would need another 200ms.
	start := time.Now()
	waitCommitted(t, channels.Committed, time.Second)
	if elapsed := time.Since(start); elapsed > 170*time.Millisecond {
		t.Fatalf("commit took %s, duplicate appears to have reset the debounce timer", elapsed)
	}
}

func TestFilterDirectionDistinguishesRequests(t *testing.T) {
	filter, channels, cancel := newTestFilter(t, 80*time.Millisecond)
	defer cancel()
	defer filter.Stop()

	channels.Raw <- models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}
	channels.Raw <- models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideTarget}

	committed := waitCommitted(t, channels.Committed, time.Second)
	if committed.Request.Direction != models.SideTarget {
		t.Fatalf("expected the later target-side request to win, got %+v", committed.Request)
	}

	assertNoCommit(t, channels.Committed, 200*time.Millisecond)
}

func TestFilterInvalidRequestsDropped(t *testing.T) {
	filter, channels, cancel := newTestFilter(t, 50*time.Millisecond)
	defer cancel()
	defer filter.Stop()

	channels.Raw <- models.ConversionRequest{From: "USD", To: "EUR", Amount: 0, Direction: models.SideSource}
	channels.Raw <- models.ConversionRequest{From: "USD", To: "USD", Amount: 10, Direction: models.SideSource}
	channels.Raw <- models.ConversionRequest{From: "", To: "EUR", Amount: 10, Direction: models.SideSource}

	assertNoCommit(t, channels.Committed, 200*time.Millisecond)
}

func TestFilterStartTwice(t *testing.T) {
	filter, _, cancel := newTestFilter(t, 50*time.Millisecond)
	defer cancel()
	defer filter.Stop()

	if err := filter.Start(context.Background()); err == nil {
		t.Fatalf("expected error when starting twice")
	}
}
