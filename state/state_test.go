package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"convertflow/internal/channel/event"
	"convertflow/models"
)

func outcome(from, to string, amount, value float64) models.ConversionOutcome {
	return models.ConversionOutcome{
		Request: models.ConversionRequest{From: from, To: to, Amount: amount, Direction: models.SideSource},
		Value:   value,
	}
}

func TestStoreInitialState(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()

	require.Equal(t, StatusIdle, snap.Status)
	require.Empty(t, snap.Err)
	require.Nil(t, snap.Currencies)
	require.Nil(t, snap.ConversionResult)
	require.Nil(t, snap.PreviewResult)
	require.Nil(t, snap.LastConversion)
}

func TestStoreCatalogLifecycle(t *testing.T) {
	s := NewStore()

	s.Apply(models.CatalogLoadStarted{})
	require.Equal(t, StatusLoading, s.Snapshot().Status)

	currencies := []models.Currency{{ShortCode: "USD", Name: "US Dollar"}, {ShortCode: "EUR", Name: "Euro"}}
	s.Apply(models.CatalogLoaded{Currencies: currencies})

	snap := s.Snapshot()
	require.Equal(t, StatusIdle, snap.Status)
	require.Len(t, snap.Currencies, 2)

	s.Apply(models.CatalogLoadFailed{Message: "Failed to load currencies"})
	snap = s.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "Failed to load currencies", snap.Err)
	// A failed reload keeps the previously loaded catalog.
	require.Len(t, snap.Currencies, 2)
}

func TestStoreConversionSuccessIsAtomic(t *testing.T) {
	s := NewStore()

	s.Apply(models.ConversionCommitted{Request: models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}})
	require.Equal(t, StatusLoading, s.Snapshot().Status)

	o := outcome("USD", "EUR", 100, 92.35)
	s.Apply(models.ConversionSucceeded{Outcome: o})

	snap := s.Snapshot()
	require.Equal(t, StatusIdle, snap.Status)
	require.NotNil(t, snap.ConversionResult)
	require.Equal(t, 92.35, *snap.ConversionResult)
	require.NotNil(t, snap.LastConversion)
	require.Equal(t, o, *snap.LastConversion)

	select {
	case got := <-s.LastConversions():
		require.Equal(t, o, got)
	default:
		t.Fatalf("expected a lastConversion notification")
	}
}

func TestStoreCommitClearsResultOnly(t *testing.T) {
	s := NewStore()

	o := outcome("USD", "EUR", 100, 92.35)
	s.Apply(models.ConversionSucceeded{Outcome: o})
	s.Apply(models.ConversionCommitted{Request: models.ConversionRequest{From: "USD", To: "EUR", Amount: 50, Direction: models.SideSource}})

	snap := s.Snapshot()
	require.Equal(t, StatusLoading, snap.Status)
	require.Nil(t, snap.ConversionResult)
	// The previous settled conversion is still known while the new one runs.
	require.Equal(t, o, *snap.LastConversion)
}

func TestStoreConversionFailureKeepsResult(t *testing.T) {
	s := NewStore()

	o := outcome("USD", "EUR", 100, 92.35)
	s.Apply(models.ConversionSucceeded{Outcome: o})
	s.Apply(models.ConversionFailed{Message: "Failed to convert currency"})

	snap := s.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "Failed to convert currency", snap.Err)
	require.NotNil(t, snap.ConversionResult)
	require.Equal(t, 92.35, *snap.ConversionResult)
	require.Equal(t, o, *snap.LastConversion)
}

func TestStorePreviewEvents(t *testing.T) {
	s := NewStore()

	s.Apply(models.PreviewSucceeded{Value: 0.92})
	snap := s.Snapshot()
	require.Equal(t, StatusIdle, snap.Status)
	require.NotNil(t, snap.PreviewResult)
	require.Equal(t, 0.92, *snap.PreviewResult)
	require.Nil(t, snap.ConversionResult)

	s.Apply(models.PreviewFailed{Message: "Failed to preview conversion"})
	snap = s.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.Equal(t, "Failed to preview conversion", snap.Err)
	require.Equal(t, 0.92, *snap.PreviewResult)
}

func TestStoreStatusSharedAcrossStreams(t *testing.T) {
	s := NewStore()

	// A preview settling while a conversion is still in flight flips the
	// shared status back to idle. Known behavior, kept as is.
	s.Apply(models.ConversionCommitted{Request: models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource}})
	s.Apply(models.PreviewSucceeded{Value: 0.92})

	require.Equal(t, StatusIdle, s.Snapshot().Status)
}

func TestStoreSnapshotIsolated(t *testing.T) {
	s := NewStore()
	s.Apply(models.CatalogLoaded{Currencies: []models.Currency{{ShortCode: "USD"}}})

	snap := s.Snapshot()
	snap.Currencies[0].ShortCode = "XXX"

	require.Equal(t, "USD", s.Snapshot().Currencies[0].ShortCode)
}

func TestStoreLastConversionDropsOldest(t *testing.T) {
	s := NewStore()

	for i := 0; i < 20; i++ {
		s.Apply(models.ConversionSucceeded{Outcome: outcome("USD", "EUR", float64(i+1), float64(i+1))})
	}

	// Buffer keeps the most recent notifications only.
	first := <-s.LastConversions()
	require.Greater(t, first.Value, float64(1))
}

func TestDispatcherAppliesEvents(t *testing.T) {
	store := NewStore()
	events := event.NewChannels(8)
	d := NewDispatcher(store, events)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	defer func() {
		cancel()
		d.Stop()
	}()

	require.True(t, events.Publish(ctx, models.CatalogLoadStarted{}))
	require.True(t, events.Publish(ctx, models.CatalogLoaded{Currencies: []models.Currency{{ShortCode: "USD"}}}))

	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.Status == StatusIdle && len(snap.Currencies) == 1
	}, time.Second, 10*time.Millisecond)
}
