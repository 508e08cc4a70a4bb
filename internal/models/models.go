package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Availability statuses for market data snapshots
const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

// OutboxEvent is the persisted envelope for a domain event awaiting
// publication. Rows are written in the same transaction as the business
// state change that raised the event; payload and processed_at are never
// mutated after the row is marked processed.
type OutboxEvent struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AggregateID   string     `gorm:"not null;index" json:"aggregate_id"`
	AggregateType string     `gorm:"not null" json:"aggregate_type"`
	Destination   string     `gorm:"not null" json:"destination"`
	Payload       []byte     `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt   *time.Time `gorm:"index" json:"processed_at"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
}

// TableName overrides the table name
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// CacheEntry is a cached external-API response. Expired entries are removed
// by the cache eviction sweeper.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Payload   []byte    `gorm:"type:jsonb;not null" json:"payload"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName overrides the table name
func (CacheEntry) TableName() string {
	return "api_cache"
}

// SystemLogEntry is an append-only audit record. Entries older than the
// configured retention window are removed by the log pruning sweeper.
type SystemLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	Severity  string    `gorm:"not null" json:"severity"`
	Component string    `gorm:"not null" json:"component"`
	Message   string    `gorm:"not null" json:"message"`
	UserName  string    `json:"user_name"`
}

// TableName overrides the table name
func (SystemLogEntry) TableName() string {
	return "system_logs"
}

// MarketData is the per-pressing pricing snapshot. A row with null values,
// AvailabilityUnavailable and a fresh timestamp is the sentinel for "pricing
// currently unavailable" and suppresses repeated lookups until it goes stale.
type MarketData struct {
	PressingID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"pressing_id"`
	MinPrice           *float64  `json:"min_price"`
	MedianPrice        *float64  `json:"median_price"`
	MaxPrice           *float64  `json:"max_price"`
	LastSoldPrice      *float64  `json:"last_sold_price"`
	Currency           string    `json:"currency"`
	AvailabilityStatus string    `gorm:"not null" json:"availability_status"`
	UpdatedAt          time.Time `gorm:"index" json:"updated_at"`
}

// TableName overrides the table name
func (MarketData) TableName() string {
	return "market_data"
}

// Pressing is the slice of the catalog's pressing table this service reads.
// Only pressings with an external release id can be priced.
type Pressing struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	AlbumID          uuid.UUID `gorm:"type:uuid;not null;index" json:"album_id"`
	Format           string    `json:"format"`
	CatalogNumber    string    `json:"catalog_number"`
	DiscogsReleaseID *string   `gorm:"index" json:"discogs_release_id"`
}

// CollectionEntry links a user to a pressing they own. Pressings held in at
// least one collection are refreshed ahead of the rest.
type CollectionEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	PressingID uuid.UUID `gorm:"type:uuid;not null;index" json:"pressing_id"`
}

// TableName overrides the table name
func (CollectionEntry) TableName() string {
	return "collection_entries"
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&OutboxEvent{},
		&CacheEntry{},
		&SystemLogEntry{},
		&MarketData{},
		&Pressing{},
		&CollectionEntry{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
