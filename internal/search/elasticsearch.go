package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient indexes market data snapshots for price search.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client. Returns nil without
// error when search indexing is disabled.
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg}, nil
}

// IndexMarketData indexes one pricing snapshot, keyed by pressing id so a
// refresh replaces the previous document.
func (c *ElasticClient) IndexMarketData(ctx context.Context, snap *models.MarketData) error {
	doc := map[string]interface{}{
		"pressing_id":         snap.PressingID.String(),
		"min_price":           snap.MinPrice,
		"median_price":        snap.MedianPrice,
		"max_price":           snap.MaxPrice,
		"last_sold_price":     snap.LastSoldPrice,
		"currency":            snap.Currency,
		"availability_status": snap.AvailabilityStatus,
		"updated_at":          snap.UpdatedAt,
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal market data document")
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: snap.PressingID.String(),
		Body:       bytes.NewReader(docJSON),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index market data document")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.New(fmt.Sprintf("indexing failed with status %s", res.Status()))
	}

	log.Debug().Str("pressing_id", snap.PressingID.String()).Msg("Indexed market data snapshot")
	return nil
}
