// Package yfinance implements the single upstream operation this tool
// depends on: fetching a daily OHLCV series for one symbol over one date
// window from a Yahoo-Finance-shaped chart endpoint.
//
// The protocol (URL shape, headers, response JSON, failure mapping) is
// normative and intentionally narrow: the upstream has been observed to
// reject requests carrying header sets larger than the three below with
// HTTP 431, so no additional headers are ever added.
package yfinance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jkabutaro/usstock-csvdownloader/internal/bar"
)

const baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Client issues chart requests against the upstream endpoint. One Client
// instance is shared read-only across all workers; it holds no per-request
// state and needs no back-references to callers.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// New builds a Client with a bounded per-request timeout. The Retry
// Controller applies its own per-attempt timeout on top of this as a safety
// net against a hung transport.
func New(log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// FetchBars issues one HTTPS GET for wireSymbol over [start, end] and
// returns the parsed bars, sorted ascending by date. Entries with any
// missing OHLC field are dropped at this layer; everything else is left to
// internal/validate.
func (c *Client) FetchBars(ctx context.Context, wireSymbol string, start, end time.Time) ([]bar.DailyBar, error) {
	url := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d&events=history",
		baseURL, wireSymbol, start.Unix(), end.AddDate(0, 0, 1).Unix())
	return c.fetchFromURL(ctx, url, wireSymbol)
}

// fetchFromURL performs the GET, header setting, and response mapping
// against an arbitrary URL. Split out from FetchBars so tests can point it
// at an httptest.Server instead of the real upstream.
func (c *Client) fetchFromURL(ctx context.Context, url, wireSymbol string) ([]bar.DailyBar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Symbol: wireSymbol, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://finance.yahoo.com/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &FetchError{Kind: KindTransient, Symbol: wireSymbol, Err: ctx.Err()}
		}
		return nil, &FetchError{Kind: KindTransient, Symbol: wireSymbol, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Symbol: wireSymbol, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return nil, &FetchError{Kind: KindRateLimited, Symbol: wireSymbol, RetryAfter: retryAfter,
			Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return nil, &FetchError{Kind: KindServerError, Symbol: wireSymbol, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &FetchError{Kind: KindBadRequest, Symbol: wireSymbol, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &FetchError{Kind: KindMalformedResponse, Symbol: wireSymbol, Err: err}
	}

	if parsed.Chart.Error != nil {
		if parsed.Chart.Error.Code == "Not Found" && containsDelistedHint(parsed.Chart.Error.Description) {
			return nil, &FetchError{Kind: KindDelisted, Symbol: wireSymbol,
				Err: fmt.Errorf("%s", parsed.Chart.Error.Description)}
		}
	}

	if len(parsed.Chart.Result) == 0 {
		return nil, &FetchError{Kind: KindNoData, Symbol: wireSymbol}
	}

	bars, err := extractBars(parsed.Chart.Result[0])
	if err != nil {
		return nil, &FetchError{Kind: KindMalformedResponse, Symbol: wireSymbol, Err: err}
	}
	if len(bars) == 0 {
		return nil, &FetchError{Kind: KindNoData, Symbol: wireSymbol}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func containsDelistedHint(description string) bool {
	return strings.Contains(strings.ToLower(description), "may be delisted")
}

func extractBars(result chartResult) ([]bar.DailyBar, error) {
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("response shape mismatch: no quote indicator")
	}
	quote := result.Indicators.Quote[0]

	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
	}

	n := len(result.Timestamp)
	bars := make([]bar.DailyBar, 0, n)
	for i := 0; i < n; i++ {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		var adj decimal.Decimal
		if i < len(adjCloses) && adjCloses[i] != nil {
			adj = decimal.NewFromFloat(*adjCloses[i])
		} else {
			adj = decimal.NewFromFloat(*quote.Close[i])
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		bars = append(bars, bar.DailyBar{
			Date:     time.Unix(result.Timestamp[i], 0).UTC().Truncate(24 * time.Hour),
			Open:     decimal.NewFromFloat(*quote.Open[i]),
			High:     decimal.NewFromFloat(*quote.High[i]),
			Low:      decimal.NewFromFloat(*quote.Low[i]),
			Close:    decimal.NewFromFloat(*quote.Close[i]),
			AdjClose: adj,
			Volume:   volume,
		})
	}
	return bars, nil
}
