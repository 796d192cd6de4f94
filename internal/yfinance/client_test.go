package yfinance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchBarsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Mozilla/5.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "https://finance.yahoo.com/", r.Header.Get("Referer"))
		w.Write([]byte(`{"chart":{"result":[{"timestamp":[1704200400],
			"indicators":{"quote":[{"open":[185.0],"high":[186.0],"low":[184.0],"close":[185.5],"volume":[1000]}],
			"adjclose":[{"adjclose":[185.5]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.httpClient = srv.Client()

	bars, err := c.fetchFromURL(context.Background(), srv.URL, "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1000), bars[0].Volume)
}

func TestFetchBarsDelisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.httpClient = srv.Client()
	_, err := c.fetchFromURL(context.Background(), srv.URL, "XYZQ")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindDelisted, fe.Kind)
}

func TestFetchBarsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.httpClient = srv.Client()
	_, err := c.fetchFromURL(context.Background(), srv.URL, "AAPL")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindRateLimited, fe.Kind)
	assert.Equal(t, 30, fe.RetryAfter)
}

func TestFetchBarsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.httpClient = srv.Client()
	_, err := c.fetchFromURL(context.Background(), srv.URL, "AAPL")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNoData, fe.Kind)
}

func TestFetchBarsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.httpClient = srv.Client()
	_, err := c.fetchFromURL(context.Background(), srv.URL, "AAPL")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindServerError, fe.Kind)
}

func TestFetchBarsDropsNullEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"timestamp":[1704200400,1704286800],
			"indicators":{"quote":[{"open":[185.0,null],"high":[186.0,null],"low":[184.0,null],"close":[185.5,null],"volume":[1000,null]}],
			"adjclose":[{"adjclose":[185.5,null]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	c.httpClient = srv.Client()
	bars, err := c.fetchFromURL(context.Background(), srv.URL, "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 1)
}
