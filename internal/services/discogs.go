package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"

	"github.com/pkg/errors"
)

// DiscogsPriceSource looks up marketplace stats from the Discogs API.
type DiscogsPriceSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDiscogsPriceSource creates a new Discogs price source
func NewDiscogsPriceSource(cfg config.DiscogsConfig) *DiscogsPriceSource {
	return &DiscogsPriceSource{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// marketplaceStats mirrors the Discogs marketplace stats response.
type marketplaceStats struct {
	LowestPrice *struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	} `json:"lowest_price"`
	NumForSale int  `json:"num_for_sale"`
	Blocked    bool `json:"blocked_from_sale"`
}

// LookupRelease fetches marketplace stats for a release.
func (s *DiscogsPriceSource) LookupRelease(ctx context.Context, releaseID string) (*PriceQuote, error) {
	url := fmt.Sprintf("%s/marketplace/stats/%s", s.baseURL, releaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build marketplace stats request")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Discogs token="+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "marketplace stats request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("marketplace stats request returned status %d", resp.StatusCode)
	}

	var stats marketplaceStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, errors.Wrap(err, "failed to decode marketplace stats response")
	}

	if stats.LowestPrice == nil || stats.Blocked {
		return nil, errors.Errorf("no marketplace pricing for release %s", releaseID)
	}

	quote := &PriceQuote{
		MinPrice: &stats.LowestPrice.Value,
		Currency: stats.LowestPrice.Currency,
	}
	return quote, nil
}
