package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appconfig "convertflow/config"
	"convertflow/internal/channel/convert"
	"convertflow/internal/channel/event"
	"convertflow/internal/channel/preview"
	"convertflow/models"
)

type apiCall struct {
	From   string
	To     string
	Amount float64
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	fn    func(ctx context.Context, from, to string, amount float64) (float64, error)
}

func (f *fakeAPI) Convert(ctx context.Context, from, to string, amount float64) (float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{From: from, To: to, Amount: amount})
	f.mu.Unlock()
	return f.fn(ctx, from, to, amount)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func nextEvent(t *testing.T, events *event.Channels) models.Event {
	t.Helper()
	select {
	case ev := <-events.Events:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event within timeout")
		return nil
	}
}

func assertNoEvent(t *testing.T, events *event.Channels, timeout time.Duration) {
	t.Helper()
	select {
	case ev := <-events.Events:
		t.Fatalf("unexpected event %T: %+v", ev, ev)
	case <-time.After(timeout):
	}
}

func startConversion(t *testing.T, api API) (*convert.Channels, *event.Channels, context.CancelFunc) {
	t.Helper()

	convertCh := convert.NewChannels(8, 8)
	eventCh := event.NewChannels(8)
	exec := NewConversionExecutor(&appconfig.Config{}, api, convertCh, eventCh)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, exec.Start(ctx))
	t.Cleanup(func() {
		cancel()
		exec.Stop()
	})

	return convertCh, eventCh, cancel
}

func TestConversionExecutorSuccess(t *testing.T) {
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		return 92.3456, nil
	}}
	convertCh, eventCh, _ := startConversion(t, api)

	req := models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}
	convertCh.Committed <- models.CommittedRequest{ID: "r1", Request: req, CommittedAt: time.Now()}

	committed, ok := nextEvent(t, eventCh).(models.ConversionCommitted)
	require.True(t, ok, "expected commit event first")
	require.Equal(t, req, committed.Request)

	succeeded, ok := nextEvent(t, eventCh).(models.ConversionSucceeded)
	require.True(t, ok, "expected success event")
	require.Equal(t, req, succeeded.Outcome.Request)
	require.Equal(t, 92.35, succeeded.Outcome.Value)

	require.Equal(t, 1, api.callCount())
}

func TestConversionExecutorRoundsHalfUp(t *testing.T) {
	values := map[float64]float64{
		10: 33.333,
		20: 33.995,
		30: 2.675,
	}
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		return values[amount], nil
	}}
	convertCh, eventCh, _ := startConversion(t, api)

	expected := map[float64]float64{10: 33.33, 20: 34, 30: 2.68}
	for _, amount := range []float64{10, 20, 30} {
		req := models.ConversionRequest{From: "USD", To: "EUR", Amount: amount, Direction: models.SideSource}
		convertCh.Committed <- models.CommittedRequest{ID: "r", Request: req, CommittedAt: time.Now()}

		nextEvent(t, eventCh) // commit event
		succeeded, ok := nextEvent(t, eventCh).(models.ConversionSucceeded)
		require.True(t, ok)
		require.Equal(t, expected[amount], succeeded.Outcome.Value, "amount %v", amount)
	}
}

func TestConversionExecutorFailure(t *testing.T) {
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		return 0, errors.New("boom")
	}}
	convertCh, eventCh, _ := startConversion(t, api)

	req := models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}
	convertCh.Committed <- models.CommittedRequest{ID: "r1", Request: req, CommittedAt: time.Now()}

	nextEvent(t, eventCh) // commit event
	failed, ok := nextEvent(t, eventCh).(models.ConversionFailed)
	require.True(t, ok, "expected failure event")
	require.Equal(t, "Failed to convert currency", failed.Message)
}

func TestConversionExecutorSwitchLatest(t *testing.T) {
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		if amount == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 200, nil
	}}
	convertCh, eventCh, _ := startConversion(t, api)

	first := models.ConversionRequest{From: "USD", To: "EUR", Amount: 1, Direction: models.SideSource}
	second := models.ConversionRequest{From: "USD", To: "EUR", Amount: 2, Direction: models.SideSource}

	convertCh.Committed <- models.CommittedRequest{ID: "r1", Request: first, CommittedAt: time.Now()}
	require.IsType(t, models.ConversionCommitted{}, nextEvent(t, eventCh))

	convertCh.Committed <- models.CommittedRequest{ID: "r2", Request: second, CommittedAt: time.Now()}
	require.IsType(t, models.ConversionCommitted{}, nextEvent(t, eventCh))

	succeeded, ok := nextEvent(t, eventCh).(models.ConversionSucceeded)
	require.True(t, ok, "expected success event for the newer request")
	require.Equal(t, second, succeeded.Outcome.Request)
	require.Equal(t, float64(200), succeeded.Outcome.Value)

	// The superseded call must not settle at all.
	assertNoEvent(t, eventCh, 100*time.Millisecond)
}

func startPreview(t *testing.T, api API) (*preview.Channels, *event.Channels) {
	t.Helper()

	previewCh := preview.NewChannels(8)
	eventCh := event.NewChannels(8)
	exec := NewPreviewExecutor(&appconfig.Config{}, api, previewCh, eventCh)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, exec.Start(ctx))
	t.Cleanup(func() {
		cancel()
		exec.Stop()
	})

	return previewCh, eventCh
}

func TestPreviewExecutorQuotesOneUnit(t *testing.T) {
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		return 0.9234, nil
	}}
	previewCh, eventCh := startPreview(t, api)

	previewCh.Keys <- models.PreviewKey{From: "USD", To: "EUR"}

	succeeded, ok := nextEvent(t, eventCh).(models.PreviewSucceeded)
	require.True(t, ok, "expected preview success")
	require.Equal(t, 0.92, succeeded.Value)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.calls, 1)
	require.Equal(t, apiCall{From: "USD", To: "EUR", Amount: 1}, api.calls[0])
}

func TestPreviewExecutorFailure(t *testing.T) {
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		return 0, errors.New("boom")
	}}
	previewCh, eventCh := startPreview(t, api)

	previewCh.Keys <- models.PreviewKey{From: "USD", To: "EUR"}

	failed, ok := nextEvent(t, eventCh).(models.PreviewFailed)
	require.True(t, ok, "expected preview failure")
	require.Equal(t, "Failed to preview conversion", failed.Message)
}

func TestPreviewExecutorSwitchLatest(t *testing.T) {
	api := &fakeAPI{fn: func(ctx context.Context, from, to string, amount float64) (float64, error) {
		if from == "USD" {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 1.1, nil
	}}
	previewCh, eventCh := startPreview(t, api)

	previewCh.Keys <- models.PreviewKey{From: "USD", To: "EUR"}
	previewCh.Keys <- models.PreviewKey{From: "GBP", To: "EUR"}

	succeeded, ok := nextEvent(t, eventCh).(models.PreviewSucceeded)
	require.True(t, ok, "expected success for the newer key")
	require.Equal(t, 1.1, succeeded.Value)

	assertNoEvent(t, eventCh, 100*time.Millisecond)
}
