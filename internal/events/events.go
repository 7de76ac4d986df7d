package events

import (
	"context"
	"sync"
	"time"

	"deal-matching-api/internal/models"
)

// EventType represents the type of domain event.
type EventType string

const (
	// EventBuyerTargeted is emitted when buyers are newly targeted at a listing.
	EventBuyerTargeted EventType = "buyer.targeted"
	// EventBuyerResponded is emitted when a buyer or admin records a response.
	EventBuyerResponded EventType = "buyer.responded"
	// EventListingCompleted is emitted when a listing is completed.
	EventListingCompleted EventType = "listing.completed"
)

// Event represents one domain event. The core only publishes; delivery of
// any outward notification belongs to a subscriber.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// BuyerTargetedData carries the buyers newly added to a listing's target set.
type BuyerTargetedData struct {
	ListingID string
	SellerID  string
	BuyerIDs  []string
}

// BuyerRespondedData carries one recorded invitation response.
type BuyerRespondedData struct {
	ListingID string
	BuyerID   string
	Response  models.Response
	Actor     models.ActorRole
}

// ListingCompletedData carries the completion of a listing.
type ListingCompletedData struct {
	ListingID string
	SellerID  string
	SalePrice float64
	Buyers    []string // interested buyers at completion time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously so a slow notifier never blocks a state transition.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			_ = h(ctx, event)
		}(handler)
	}
}

// PublishBuyerTargeted publishes a buyer targeted event.
func (m *Manager) PublishBuyerTargeted(ctx context.Context, listingID, sellerID string, buyerIDs []string) {
	m.Publish(ctx, EventBuyerTargeted, BuyerTargetedData{
		ListingID: listingID,
		SellerID:  sellerID,
		BuyerIDs:  buyerIDs,
	})
}

// PublishBuyerResponded publishes a buyer responded event.
func (m *Manager) PublishBuyerResponded(ctx context.Context, listingID, buyerID string, response models.Response, actor models.ActorRole) {
	m.Publish(ctx, EventBuyerResponded, BuyerRespondedData{
		ListingID: listingID,
		BuyerID:   buyerID,
		Response:  response,
		Actor:     actor,
	})
}

// PublishListingCompleted publishes a listing completed event.
func (m *Manager) PublishListingCompleted(ctx context.Context, l *models.Listing) {
	m.Publish(ctx, EventListingCompleted, ListingCompletedData{
		ListingID: l.ID,
		SellerID:  l.SellerID,
		SalePrice: l.SalePrice,
		Buyers:    append([]string(nil), l.InterestedBuyers...),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
