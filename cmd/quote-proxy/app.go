package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Sternrassler/quote-cache/internal/config"
	"github.com/Sternrassler/quote-cache/pkg/batch"
	"github.com/Sternrassler/quote-cache/pkg/cache"
	"github.com/Sternrassler/quote-cache/pkg/logging"
	"github.com/Sternrassler/quote-cache/pkg/metrics"
	"github.com/Sternrassler/quote-cache/pkg/ratelimit"
	"github.com/Sternrassler/quote-cache/pkg/resolver"
	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// maxBatchTickers bounds /api/stocks/prices.
const maxBatchTickers = 50

var (
	currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
	tickerPattern   = regexp.MustCompile(`^[A-Za-z0-9.\-^=]{1,15}$`)
)

type app struct {
	resolver *resolver.Resolver
	batch    *batch.Resolver
	store    *cache.MemoryStore
	tracker  *ratelimit.Tracker
	redis    *redis.Client
	logger   zerolog.Logger
}

func newApp(cfg config.Config, stateStore ratelimit.StateStore, redisClient *redis.Client) (*app, error) {
	src := source.NewYahoo(
		source.WithBaseURL(cfg.UpstreamBaseURL),
		source.WithTimeout(cfg.UpstreamTimeout),
		source.WithUserAgent(cfg.UserAgent),
		source.WithLogger(logging.NewLogger("source")),
	)

	store := cache.NewMemoryStore()
	tracker := ratelimit.NewTracker(stateStore, cfg.RateLimitCooldown, logging.NewLogger("ratelimit"))

	r, err := resolver.New(resolver.Config{
		Store:    store,
		Source:   src,
		Retry:    cfg.Retry,
		Policy:   cfg.Policy,
		Defaults: resolver.DefaultTable(),
		Tracker:  tracker,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		resolver: r,
		batch:    batch.New(r, batch.Config{MaxConcurrency: cfg.BatchMaxConcurrency}),
		store:    store,
		tracker:  tracker,
		redis:    redisClient,
		logger:   logging.NewLogger("http"),
	}, nil
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", a.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/exchange/rate/{from}/{to}", a.exchangeRateHandler)
	mux.HandleFunc("GET /api/exchange/usd-krw", a.usdKrwHandler)
	mux.HandleFunc("GET /api/stocks/price/{ticker}", a.stockPriceHandler)
	mux.HandleFunc("GET /api/stocks/prices", a.stockPricesHandler)
	mux.HandleFunc("GET /api/cache", a.cacheHandler)

	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request served")
	})(mux)
	return hlog.NewHandler(a.logger)(h)
}

type exchangeRateResponse struct {
	Success         bool    `json:"success"`
	Rate            float64 `json:"rate"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	Message         string  `json:"message"`
	Timestamp       int64   `json:"timestamp"`
	Cached          bool    `json:"cached"`
	Source          string  `json:"source"`
	CachedTimestamp int64   `json:"cachedTimestamp"`
	AgeSeconds      float64 `json:"ageSeconds"`
}

type stockPriceResponse struct {
	Success         bool    `json:"success"`
	CurrentPrice    float64 `json:"currentPrice"`
	Ticker          string  `json:"ticker"`
	Message         string  `json:"message"`
	Timestamp       int64   `json:"timestamp"`
	Cached          bool    `json:"cached"`
	Source          string  `json:"source"`
	CachedTimestamp int64   `json:"cachedTimestamp"`
	AgeSeconds      float64 `json:"ageSeconds"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func newExchangeRateResponse(from, to string, resp resolver.Response) exchangeRateResponse {
	return exchangeRateResponse{
		Success:         resp.Success,
		Rate:            resp.Value,
		From:            from,
		To:              to,
		Message:         resp.Message,
		Timestamp:       resp.Timestamp.UnixMilli(),
		Cached:          resp.Cached,
		Source:          string(resp.Source),
		CachedTimestamp: resp.CachedTimestamp.UnixMilli(),
		AgeSeconds:      resp.AgeSeconds,
	}
}

func newStockPriceResponse(resp resolver.Response) stockPriceResponse {
	return stockPriceResponse{
		Success:         resp.Success,
		CurrentPrice:    resp.Value,
		Ticker:          resp.Key,
		Message:         resp.Message,
		Timestamp:       resp.Timestamp.UnixMilli(),
		Cached:          resp.Cached,
		Source:          string(resp.Source),
		CachedTimestamp: resp.CachedTimestamp.UnixMilli(),
		AgeSeconds:      resp.AgeSeconds,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (a *app) readyHandler(w http.ResponseWriter, r *http.Request) {
	if a.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "READY")
}

func (a *app) exchangeRateHandler(w http.ResponseWriter, r *http.Request) {
	from, to := r.PathValue("from"), r.PathValue("to")
	if !currencyPattern.MatchString(from) || !currencyPattern.MatchString(to) {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid currency pair %q/%q", from, to))
		return
	}
	a.writeExchangeRate(w, r, from, to)
}

func (a *app) usdKrwHandler(w http.ResponseWriter, r *http.Request) {
	a.writeExchangeRate(w, r, "USD", "KRW")
}

func (a *app) writeExchangeRate(w http.ResponseWriter, r *http.Request, from, to string) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	resp := a.resolver.Resolve(r.Context(), cache.PairKey(from, to))
	a.writeJSON(w, http.StatusOK, newExchangeRateResponse(from, to, resp))
}

func (a *app) stockPriceHandler(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	if !tickerPattern.MatchString(ticker) {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ticker %q", ticker))
		return
	}
	resp := a.resolver.Resolve(r.Context(), cache.TickerKey(ticker))
	a.writeJSON(w, http.StatusOK, newStockPriceResponse(resp))
}

func (a *app) stockPricesHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tickers")

	var keys []string
	for _, ticker := range strings.Split(raw, ",") {
		ticker = strings.TrimSpace(ticker)
		if ticker == "" {
			continue
		}
		if !tickerPattern.MatchString(ticker) {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ticker %q", ticker))
			return
		}
		keys = append(keys, cache.TickerKey(ticker))
	}
	keys = batch.Dedup(keys)

	if len(keys) == 0 {
		a.writeError(w, http.StatusBadRequest, "tickers query parameter is required")
		return
	}
	if len(keys) > maxBatchTickers {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d tickers per request", maxBatchTickers))
		return
	}

	results := a.batch.ResolveAll(r.Context(), keys)
	out := make([]stockPriceResponse, 0, len(results))
	for _, resp := range results {
		out = append(out, newStockPriceResponse(resp))
	}
	a.writeJSON(w, http.StatusOK, out)
}

type cacheEntryView struct {
	Key        string  `json:"key"`
	Value      float64 `json:"value"`
	Succeeded  bool    `json:"succeeded"`
	Source     string  `json:"source"`
	CapturedAt int64   `json:"capturedAt"`
	ExpiresAt  int64   `json:"expiresAt"`
	TTLSeconds float64 `json:"ttlSeconds"`
	Valid      bool    `json:"valid"`
}

type cacheView struct {
	Stats     cache.Stats      `json:"stats"`
	Cooldown  ratelimit.State  `json:"cooldown"`
	Cooling   bool             `json:"cooling"`
	Entries   []cacheEntryView `json:"entries"`
	Timestamp int64            `json:"timestamp"`
}

func (a *app) cacheHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	view := cacheView{
		Stats:     a.store.Stats(),
		Entries:   []cacheEntryView{},
		Timestamp: now.UnixMilli(),
	}

	if state, err := a.tracker.State(r.Context()); err == nil {
		view.Cooldown = state
		view.Cooling = state.Active(now)
	} else {
		a.logger.Warn().Err(err).Msg("Failed to load rate limit state")
	}

	for _, key := range a.store.Keys() {
		e, ok := a.resolver.Peek(key)
		if !ok {
			continue
		}
		view.Entries = append(view.Entries, cacheEntryView{
			Key:        e.Key,
			Value:      e.Value,
			Succeeded:  e.Succeeded,
			Source:     string(e.Source),
			CapturedAt: e.CapturedAt.UnixMilli(),
			ExpiresAt:  e.ExpiresAt().UnixMilli(),
			TTLSeconds: e.TTL.Seconds(),
			Valid:      e.IsValid(now),
		})
	}

	a.writeJSON(w, http.StatusOK, view)
}

func (a *app) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, errorResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (a *app) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write response")
	}
}
