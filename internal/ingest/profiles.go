package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// historyLookback caps the activity page used to build a profile. A
// wallet with more history than this is well past every novelty rule
// anyway.
const historyLookback = 500

// activityRecord is one row of a wallet's Data-API activity history.
type activityRecord struct {
	ConditionID string `json:"conditionId"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
}

// ProfilesClient builds wallet history snapshots from the Data-API
// activity feed. Profiles are fetched fresh per wallet per cycle; the
// call volume is low enough that freshness beats caching.
type ProfilesClient struct {
	baseURL string
	client  *http.Client
}

// NewProfilesClient creates a profiles client with a bounded request timeout.
func NewProfilesClient(baseURL string, timeout time.Duration) *ProfilesClient {
	return &ProfilesClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchProfile returns the wallet's history snapshot: trade count, first
// seen time, and distinct markets traded. Failures wrap
// ErrProfileUnavailable; the caller must skip the wallet rather than
// guess at its history.
func (c *ProfilesClient) FetchProfile(ctx context.Context, address string) (*store.WalletProfile, error) {
	url := fmt.Sprintf("%s/activity?user=%s&type=TRADE&limit=%d", c.baseURL, address, historyLookback)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", store.ErrProfileUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %s: %v", store.ErrProfileUnavailable, address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: wallet %s: status %d", store.ErrProfileUnavailable, address, resp.StatusCode)
	}

	var records []activityRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: wallet %s: decode: %v", store.ErrProfileUnavailable, address, err)
	}

	profile := &store.WalletProfile{Address: address}
	markets := make(map[string]struct{})

	for _, record := range records {
		if record.Timestamp <= 0 {
			continue
		}

		profile.TotalTrades++
		if record.ConditionID != "" {
			markets[record.ConditionID] = struct{}{}
		}

		at := parseTimestamp(record.Timestamp)
		if profile.FirstSeen.IsZero() || at.Before(profile.FirstSeen) {
			profile.FirstSeen = at
		}
	}

	profile.DistinctMarkets = len(markets)
	return profile, nil
}
