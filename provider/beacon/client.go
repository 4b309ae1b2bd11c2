package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"golang.org/x/time/rate"

	"convertflow/config"
	"convertflow/logger"
	"convertflow/models"
)

// Client talks to the currencybeacon REST API. All requests carry the
// configured API key and pass through a shared rate limiter.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

func NewClient(cfg *config.Config) *Client {
	pc := cfg.Provider

	transport := &http.Transport{
		MaxIdleConns:    pc.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: pc.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: pc.ConnectionPool.IdleConnTimeout,
	}

	rps := pc.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := pc.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: pc.BaseURL,
		apiKey:  pc.APIKey,
		httpClient: &http.Client{
			Transport: userAgentTransport{agent: pc.UserAgent, base: transport},
			Timeout:   pc.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

type convertResponse struct {
	Response struct {
		Timestamp int64   `json:"timestamp"`
		From      string  `json:"from"`
		To        string  `json:"to"`
		Amount    float64 `json:"amount"`
		Value     float64 `json:"value"`
	} `json:"response"`
}

type currenciesResponse struct {
	Response json.RawMessage `json:"response"`
}

// Convert returns the value of amount units of from expressed in to.
func (c *Client) Convert(ctx context.Context, from, to string, amount float64) (float64, error) {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	params.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))

	body, err := c.get(ctx, "/convert", params)
	if err != nil {
		return 0, err
	}

	var res convertResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("failed to decode convert response: %w", err)
	}

	c.log.WithComponent("beacon_client").WithFields(logger.Fields{
		"from":   from,
		"to":     to,
		"amount": amount,
		"value":  res.Response.Value,
	}).Debug("conversion rate fetched")

	return res.Response.Value, nil
}

// Currencies returns the fiat currency catalog. The API historically
// returned either an array or an object keyed by currency code, so both
// shapes are accepted.
func (c *Client) Currencies(ctx context.Context) ([]models.Currency, error) {
	params := url.Values{}
	params.Set("type", "fiat")

	body, err := c.get(ctx, "/currencies", params)
	if err != nil {
		return nil, err
	}

	var res currenciesResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode currencies response: %w", err)
	}

	var list []models.Currency
	if err := json.Unmarshal(res.Response, &list); err == nil {
		return list, nil
	}

	var keyed map[string]models.Currency
	if err := json.Unmarshal(res.Response, &keyed); err != nil {
		return nil, fmt.Errorf("unexpected currencies response shape: %w", err)
	}

	list = make([]models.Currency, 0, len(keyed))
	for code, cur := range keyed {
		if cur.ShortCode == "" {
			cur.ShortCode = code
		}
		list = append(list, cur)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ShortCode < list[j].ShortCode })

	return list, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", res.StatusCode, path)
	}

	return body, nil
}
