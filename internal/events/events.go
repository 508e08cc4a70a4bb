package events

import (
	"encoding/json"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DomainEvent is an immutable fact raised by a business operation. The kind
// is a stable string tag, the payload a JSON-serializable mapping.
type DomainEvent interface {
	Kind() string
	Version() int
	Payload() map[string]interface{}
}

// Envelope is the wire form of a domain event as stored in the outbox and
// published to the broker.
type Envelope struct {
	EventID    uuid.UUID              `json:"event_id"`
	Kind       string                 `json:"kind"`
	Version    int                    `json:"version"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// Record appends an outbox row for the event on the caller's transaction
// handle. It never commits and never publishes; if the surrounding
// transaction rolls back, the event row rolls back with it. Any store error
// propagates so the whole business operation fails together.
func Record(tx *gorm.DB, ev DomainEvent, aggregateID, aggregateType, destination string) error {
	env := Envelope{
		EventID:    uuid.New(),
		Kind:       ev.Kind(),
		Version:    ev.Version(),
		OccurredAt: time.Now().UTC(),
		Payload:    ev.Payload(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event envelope")
	}

	row := models.OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Destination:   destination,
		Payload:       data,
	}

	if err := tx.Create(&row).Error; err != nil {
		return errors.Wrap(err, "failed to append outbox event")
	}

	return nil
}

// DestinationFor returns the broker-neutral destination for an event kind,
// e.g. /topic/pressing.price_updated.
func DestinationFor(ev DomainEvent) string {
	return "/topic/" + ev.Kind()
}

// PressingPriceUpdated is raised when a pricing refresh stored a new market
// data snapshot for a pressing.
type PressingPriceUpdated struct {
	PressingID    uuid.UUID
	MinPrice      *float64
	MedianPrice   *float64
	MaxPrice      *float64
	LastSoldPrice *float64
	Currency      string
}

// Kind returns the event kind tag
func (PressingPriceUpdated) Kind() string { return "pressing.price_updated" }

// Version returns the event schema version
func (PressingPriceUpdated) Version() int { return 1 }

// Payload returns the kind-specific payload
func (e PressingPriceUpdated) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pressing_id":     e.PressingID.String(),
		"min_price":       e.MinPrice,
		"median_price":    e.MedianPrice,
		"max_price":       e.MaxPrice,
		"last_sold_price": e.LastSoldPrice,
		"currency":        e.Currency,
	}
}

// PressingPricingUnavailable is raised when a pricing lookup failed and the
// unavailable sentinel was written.
type PressingPricingUnavailable struct {
	PressingID uuid.UUID
	Reason     string
}

// Kind returns the event kind tag
func (PressingPricingUnavailable) Kind() string { return "pressing.pricing_unavailable" }

// Version returns the event schema version
func (PressingPricingUnavailable) Version() int { return 1 }

// Payload returns the kind-specific payload
func (e PressingPricingUnavailable) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pressing_id": e.PressingID.String(),
		"reason":      e.Reason,
	}
}

// CatalogChange is the generic event raised by the catalog CRUD surface for
// creates, updates and deletes of artists, albums and pressings. The kind is
// derived from entity and action, e.g. artist.created.
type CatalogChange struct {
	Entity   string
	Action   string
	EntityID uuid.UUID
	Fields   map[string]interface{}
}

// Kind returns the event kind tag
func (e CatalogChange) Kind() string { return e.Entity + "." + e.Action }

// Version returns the event schema version
func (CatalogChange) Version() int { return 1 }

// Payload returns the kind-specific payload
func (e CatalogChange) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"id": e.EntityID.String(),
	}
	for k, v := range e.Fields {
		payload[k] = v
	}
	return payload
}
