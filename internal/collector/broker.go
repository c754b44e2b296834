package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"PatternScout/internal/model"
)

// BrokerFetcher implements Fetcher against the broker's REST data API.
type BrokerFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewBrokerFetcher creates a new fetcher with optional proxy support.
func NewBrokerFetcher(baseURL, apiKey, proxyURL string) *BrokerFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &BrokerFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *BrokerFetcher) Name() string { return "broker" }

// brokerCandle is the expected JSON shape of one history bar.
type brokerCandle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *BrokerFetcher) FetchHistory(ctx context.Context, symbol, resolution string, from, to time.Time) ([]model.Candle, error) {
	endpoint := fmt.Sprintf("%s/api/v1/history?symbol=%s&resolution=%s&from=%d&to=%d",
		f.BaseURL, url.QueryEscape(symbol), url.QueryEscape(resolution), from.Unix(), to.Unix())

	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	var raw []brokerCandle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	candles := make([]model.Candle, len(raw))
	for i, b := range raw {
		candles[i] = model.Candle{
			Time:   time.Unix(b.Timestamp, 0),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (f *BrokerFetcher) FetchQuote(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", f.BaseURL, url.QueryEscape(symbol))
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return 0, fmt.Errorf("fetch quote: %w", err)
	}
	var result struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode quote: %w", err)
	}
	return result.Price, nil
}

func (f *BrokerFetcher) FetchInstrument(ctx context.Context, symbol string) (model.Instrument, error) {
	endpoint := fmt.Sprintf("%s/api/v1/instrument?symbol=%s", f.BaseURL, url.QueryEscape(symbol))
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return model.Instrument{}, fmt.Errorf("fetch instrument: %w", err)
	}
	var result struct {
		Symbol   string  `json:"symbol"`
		LotSize  int     `json:"lot_size"`
		TickSize float64 `json:"tick_size"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return model.Instrument{}, fmt.Errorf("decode instrument: %w", err)
	}
	inst := model.Instrument{Symbol: result.Symbol, LotSize: result.LotSize, TickSize: result.TickSize}
	if inst.Symbol == "" {
		inst.Symbol = symbol
	}
	if inst.LotSize <= 0 {
		inst.LotSize = 1
	}
	return inst, nil
}

func (f *BrokerFetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
