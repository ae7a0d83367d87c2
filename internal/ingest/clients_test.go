package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polywatch/engine/internal/store"
)

func TestFetchTopMarketsRanking(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "m-small", "question": "Small?", "slug": "small", "active": true, "closed": false, "volumeNum": 1000.0},
			{"id": "m-big", "question": "Big?", "slug": "big", "active": true, "closed": false, "volumeNum": 900000.0},
			{"id": "m-closed", "question": "Closed?", "slug": "closed", "active": true, "closed": true, "volumeNum": 5000000.0},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewMarketsClient(srv.URL, 5*time.Second)
	markets, err := c.FetchTopMarkets(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(markets) != 2 {
		t.Fatalf("expected 2 markets (closed one dropped), got %d", len(markets))
	}
	if markets[0].ID != "m-big" {
		t.Errorf("expected volume-descending order, got %s first", markets[0].ID)
	}
	if markets[0].URL != "https://polymarket.com/market/big" {
		t.Errorf("unexpected market URL: %s", markets[0].URL)
	}
}

func TestFetchTopMarketsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewMarketsClient(srv.URL, 5*time.Second)
	_, err := c.FetchTopMarkets(context.Background(), 50)
	if !errors.Is(err, store.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchAssetIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "m1", "clobTokenIds": `["tok-yes","tok-no"]`},
			{"id": "m2", "clobTokenIds": "not-json"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewMarketsClient(srv.URL, 5*time.Second)
	index, err := c.FetchAssetIndex(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(index) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(index))
	}
	if index["tok-yes"] != "m1" || index["tok-no"] != "m1" {
		t.Errorf("unexpected index: %v", index)
	}
}

func TestFetchRecentTradesConversion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/trades", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("market"); got != "m1" {
			t.Errorf("expected market=m1, got %s", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			// usdcSize preferred over size*price
			{"proxyWallet": "0xA", "outcome": "Yes", "conditionId": "m1",
				"size": "1000", "price": "0.40", "usdcSize": "450", "timestamp": 1748779200},
			// no usdcSize: value = size*price = 250
			{"proxyWallet": "0xB", "outcome": "No", "conditionId": "m1",
				"size": "500", "price": "0.50", "timestamp": 1748779260},
			// missing wallet: dropped as malformed
			{"outcome": "Yes", "size": "100", "price": "0.10", "timestamp": 1748779200},
			// unknown outcome: dropped as malformed
			{"proxyWallet": "0xC", "outcome": "Maybe", "size": "100", "price": "0.10", "timestamp": 1748779200},
			// non-trade operation: dropped as malformed
			{"proxyWallet": "0xD", "side": "MERGE", "outcome": "Yes", "size": "100", "price": "0.10", "timestamp": 1748779200},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewTradesClient(srv.URL, 5*time.Second)
	trades, dropped, err := c.FetchRecentTrades(context.Background(), "m1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dropped != 3 {
		t.Errorf("expected 3 malformed records dropped, got %d", dropped)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	if trades[0].SizeUSD != 450 {
		t.Errorf("expected usdcSize 450 preferred, got %v", trades[0].SizeUSD)
	}
	if trades[0].Side != store.SideYes {
		t.Errorf("expected YES side, got %s", trades[0].Side)
	}
	if trades[1].SizeUSD != 250 {
		t.Errorf("expected size*price = 250, got %v", trades[1].SizeUSD)
	}
	if trades[1].Side != store.SideNo {
		t.Errorf("expected NO side, got %s", trades[1].Side)
	}
	if trades[0].MarketID != "m1" {
		t.Errorf("expected market m1, got %s", trades[0].MarketID)
	}
}

func TestFetchRecentTradesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewTradesClient(srv.URL, 5*time.Second)
	_, _, err := c.FetchRecentTrades(context.Background(), "m1", 100)
	if !errors.Is(err, store.ErrTradeFetchFailed) {
		t.Errorf("expected ErrTradeFetchFailed, got %v", err)
	}
}

func TestFetchProfile(t *testing.T) {
	first := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/activity", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "0xA" {
			t.Errorf("expected user=0xA, got %s", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"conditionId": "m1", "timestamp": first.Add(48 * time.Hour).Unix(), "type": "TRADE"},
			{"conditionId": "m2", "timestamp": first.Unix(), "type": "TRADE"},
			{"conditionId": "m1", "timestamp": first.Add(time.Hour).Unix(), "type": "TRADE"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewProfilesClient(srv.URL, 5*time.Second)
	profile, err := c.FetchProfile(context.Background(), "0xA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.TotalTrades != 3 {
		t.Errorf("expected 3 trades, got %d", profile.TotalTrades)
	}
	if profile.DistinctMarkets != 2 {
		t.Errorf("expected 2 distinct markets, got %d", profile.DistinctMarkets)
	}
	if !profile.FirstSeen.Equal(first) {
		t.Errorf("expected first seen %v, got %v", first, profile.FirstSeen)
	}
}

func TestFetchProfileUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewProfilesClient(srv.URL, 5*time.Second)
	_, err := c.FetchProfile(context.Background(), "0xA")
	if !errors.Is(err, store.ErrProfileUnavailable) {
		t.Errorf("expected ErrProfileUnavailable, got %v", err)
	}
}

func TestTradeBufferWindow(t *testing.T) {
	buffer := NewTradeBuffer(time.Hour)
	now := time.Now()

	buffer.Add(store.Trade{ID: "t1", MarketID: "m1", Wallet: "0xA", SizeUSD: 100, Timestamp: now.Add(-30 * time.Minute)})
	buffer.Add(store.Trade{ID: "t2", MarketID: "m1", Wallet: "0xA", SizeUSD: 200, Timestamp: now.Add(-5 * time.Minute)})

	recent := buffer.Recent("m1", now.Add(-10*time.Minute))
	if len(recent) != 1 || recent[0].ID != "t2" {
		t.Errorf("expected only t2 within 10m, got %v", recent)
	}

	if got := buffer.Recent("m2", now.Add(-time.Hour)); len(got) != 0 {
		t.Errorf("expected empty result for unknown market, got %d", len(got))
	}
}

func TestTradeBufferPrunesOutOfOrder(t *testing.T) {
	// A stale trade arriving after a fresh one must still be pruned;
	// arrival order is not chronological order on the live feed.
	buffer := NewTradeBuffer(time.Hour)
	now := time.Now()

	buffer.Add(store.Trade{ID: "fresh-1", MarketID: "m1", Wallet: "0xA", SizeUSD: 100, Timestamp: now.Add(-5 * time.Minute)})
	buffer.Add(store.Trade{ID: "stale", MarketID: "m1", Wallet: "0xA", SizeUSD: 200, Timestamp: now.Add(-2 * time.Hour)})
	buffer.Add(store.Trade{ID: "fresh-2", MarketID: "m1", Wallet: "0xA", SizeUSD: 300, Timestamp: now.Add(-time.Minute)})

	recent := buffer.Recent("m1", now.Add(-24*time.Hour))
	if len(recent) != 2 {
		t.Fatalf("expected stale trade pruned, got %d trades", len(recent))
	}
	for _, trade := range recent {
		if trade.ID == "stale" {
			t.Error("expected stale trade dropped despite late arrival")
		}
	}
}
