// Package ledger reads the append-only interaction history. Records are
// written by the engagement state machine; this package only aggregates and
// reconstructs.
package ledger

import (
	"context"

	"deal-matching-api/internal/models"
)

// Store is the ledger storage. *database.DB satisfies it.
type Store interface {
	RecentInteractionsBySeller(ctx context.Context, sellerID string, limit int) ([]models.Interaction, error)
	InteractionsByListing(ctx context.Context, listingID string) ([]models.Interaction, error)
	LatestInteraction(ctx context.Context, listingID, buyerID string) (*models.Interaction, error)
}

// Summary aggregates one listing's ledger.
type Summary struct {
	ListingID      string                         `json:"listing_id"`
	Total          int                            `json:"total"`
	CountsByType   map[models.InteractionType]int `json:"counts_by_type"`
	DistinctBuyers int                            `json:"distinct_buyers"`
}

// Service answers read queries over the ledger.
type Service struct {
	store Store
}

// NewService creates a ledger reader.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// RecentForSeller returns the newest records across all of a seller's
// listings, newest first.
func (s *Service) RecentForSeller(ctx context.Context, sellerID string, limit int) ([]models.Interaction, error) {
	return s.store.RecentInteractionsBySeller(ctx, sellerID, limit)
}

// SummaryForListing counts one listing's records by type plus the number of
// distinct buyers that ever touched it.
func (s *Service) SummaryForListing(ctx context.Context, listingID string) (*Summary, error) {
	records, err := s.store.InteractionsByListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ListingID:    listingID,
		CountsByType: make(map[models.InteractionType]int),
	}
	buyers := make(map[string]struct{})
	for _, rec := range records {
		summary.Total++
		summary.CountsByType[rec.Type]++
		if rec.BuyerID != "" {
			buyers[rec.BuyerID] = struct{}{}
		}
	}
	summary.DistinctBuyers = len(buyers)
	return summary, nil
}

// CurrentStatusFromLedger reconstructs a buyer's status on a listing from
// its latest ledger record. It is the fallback for buyers who interacted
// before being formally targeted and therefore have no entry in the
// authoritative invitation map. The second return is false when the buyer
// never touched the listing.
func (s *Service) CurrentStatusFromLedger(ctx context.Context, listingID, buyerID string) (models.Response, bool, error) {
	rec, err := s.store.LatestInteraction(ctx, listingID, buyerID)
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		return "", false, nil
	}

	switch rec.Type {
	case models.InteractionInterest:
		return models.ResponseAccepted, true, nil
	case models.InteractionRejected:
		return models.ResponseRejected, true, nil
	default:
		return models.ResponsePending, true, nil
	}
}
