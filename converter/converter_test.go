package converter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appconfig "convertflow/config"
	"convertflow/models"
	"convertflow/querysync"
	"convertflow/state"
)

type fakeProvider struct {
	mu           sync.Mutex
	convertCalls []float64
	catalogErr   error
	convertErr   error
}

func (f *fakeProvider) Convert(ctx context.Context, from, to string, amount float64) (float64, error) {
	f.mu.Lock()
	f.convertCalls = append(f.convertCalls, amount)
	f.mu.Unlock()
	if f.convertErr != nil {
		return 0, f.convertErr
	}
	return amount * 0.923456, nil
}

func (f *fakeProvider) Currencies(ctx context.Context) ([]models.Currency, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return []models.Currency{
		{ShortCode: "USD", Name: "US Dollar"},
		{ShortCode: "EUR", Name: "Euro"},
	}, nil
}

func (f *fakeProvider) conversions() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.convertCalls))
	copy(out, f.convertCalls)
	return out
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Channels: appconfig.ChannelsConfig{RequestBuffer: 16, CommittedBuffer: 8, PreviewBuffer: 8, EventBuffer: 16},
		Pipeline: appconfig.PipelineConfig{DebounceWindow: 60 * time.Millisecond},
	}
}

func startConverter(t *testing.T, provider Provider, store querysync.Store) *Converter {
	t.Helper()

	c := New(testConfig(), provider, store)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() {
		cancel()
		c.Stop()
	})
	return c
}

func TestLoadCurrencies(t *testing.T) {
	provider := &fakeProvider{}
	c := startConverter(t, provider, querysync.NewMemoryStore())

	c.LoadCurrencies(context.Background())

	require.Eventually(t, func() bool {
		return len(c.Currencies()) == 2 && c.Status() == state.StatusIdle
	}, time.Second, 10*time.Millisecond)
}

func TestLoadCurrenciesFailure(t *testing.T) {
	provider := &fakeProvider{catalogErr: errors.New("boom")}
	c := startConverter(t, provider, querysync.NewMemoryStore())

	c.LoadCurrencies(context.Background())

	require.Eventually(t, func() bool {
		return c.Status() == state.StatusError && c.Err() == "Failed to load currencies"
	}, time.Second, 10*time.Millisecond)
	require.Nil(t, c.Currencies())
}

func TestConvertCurrencyEndToEnd(t *testing.T) {
	provider := &fakeProvider{}
	queryStore := querysync.NewMemoryStore()
	c := startConverter(t, provider, queryStore)

	// A typing burst: only the final amount may reach the provider.
	for _, amount := range []float64{97, 98, 99, 100} {
		c.ConvertCurrency(models.ConversionRequest{From: "USD", To: "EUR", Amount: amount, Direction: models.SideSource})
	}

	require.Eventually(t, func() bool {
		return c.ConversionResult() != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 92.35, *c.ConversionResult())

	last := c.LastConversion()
	require.NotNil(t, last)
	require.Equal(t, float64(100), last.Request.Amount)
	require.Equal(t, 92.35, last.Value)

	require.Equal(t, []float64{100}, provider.conversions(), "burst must collapse to one provider call")

	require.Eventually(t, func() bool {
		from, to := queryStore.Get()
		return from == "USD" && to == "EUR"
	}, time.Second, 10*time.Millisecond)

	// The query write must not loop back into the pipeline.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, []float64{100}, provider.conversions())
}

func TestConvertCurrencyFailure(t *testing.T) {
	provider := &fakeProvider{convertErr: errors.New("boom")}
	c := startConverter(t, provider, querysync.NewMemoryStore())

	c.ConvertCurrency(models.ConversionRequest{From: "USD", To: "EUR", Amount: 100, Direction: models.SideSource})

	require.Eventually(t, func() bool {
		return c.Status() == state.StatusError
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "Failed to convert currency", c.Err())
	require.Nil(t, c.ConversionResult())
	require.Nil(t, c.LastConversion())
}

func TestConvertCurrencyInvalidDroppedSilently(t *testing.T) {
	provider := &fakeProvider{}
	c := startConverter(t, provider, querysync.NewMemoryStore())

	c.ConvertCurrency(models.ConversionRequest{From: "USD", To: "USD", Amount: 100, Direction: models.SideSource})
	c.ConvertCurrency(models.ConversionRequest{From: "USD", To: "EUR", Amount: -5, Direction: models.SideSource})
	c.ConvertCurrency(models.ConversionRequest{From: "", To: "EUR", Amount: 100, Direction: models.SideSource})

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, provider.conversions())
	require.Equal(t, state.StatusIdle, c.Status())
}

func TestPreviewConversion(t *testing.T) {
	provider := &fakeProvider{}
	c := startConverter(t, provider, querysync.NewMemoryStore())

	c.PreviewConversion("USD", "EUR")

	require.Eventually(t, func() bool {
		return c.PreviewResult() != nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0.92, *c.PreviewResult())

	// Repeating the pair is a no-op.
	c.PreviewConversion("USD", "EUR")
	time.Sleep(100 * time.Millisecond)
	require.Len(t, provider.conversions(), 1)

	// A new pair goes through.
	c.PreviewConversion("EUR", "USD")
	require.Eventually(t, func() bool {
		return len(provider.conversions()) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPreviewConversionInvalidPair(t *testing.T) {
	provider := &fakeProvider{}
	c := startConverter(t, provider, querysync.NewMemoryStore())

	c.PreviewConversion("USD", "USD")
	c.PreviewConversion("", "EUR")

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, provider.conversions())
}
