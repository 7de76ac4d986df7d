package engagement

import (
	"context"

	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/models"
)

// PublishListing moves a listing from draft to active and stamps
// publishedAt. Publishing an already-active listing is a no-op.
func (s *Service) PublishListing(ctx context.Context, listingID, actorID string, role models.ActorRole) (*models.Listing, error) {
	return s.store.UpdateListingCAS(ctx, listingID, func(l *models.Listing) ([]models.Interaction, error) {
		if err := requireOwner(l, actorID, role); err != nil {
			return nil, err
		}
		if l.Status == models.ListingCompleted {
			return nil, errs.InvalidTransition(string(l.Status), string(models.ListingActive))
		}
		if l.Status == models.ListingActive && l.Timeline.PublishedAt != nil {
			return nil, nil
		}

		now := s.now().UTC()
		l.Status = models.ListingActive
		if l.Timeline.PublishedAt == nil {
			l.Timeline.PublishedAt = &now
		}
		l.Timeline.UpdatedAt = now
		return nil, nil
	})
}

// CompleteListing moves an active listing to completed, records the final
// sale price and appends the listing-level completion record. Completing an
// already-completed listing is a no-op; completing a draft is rejected.
func (s *Service) CompleteListing(ctx context.Context, listingID string, salePrice float64, actorID string, role models.ActorRole) (*models.Listing, error) {
	completed := false

	l, err := s.store.UpdateListingCAS(ctx, listingID, func(l *models.Listing) ([]models.Interaction, error) {
		if err := requireOwner(l, actorID, role); err != nil {
			return nil, err
		}
		if l.Status == models.ListingCompleted && l.Timeline.CompletedAt != nil {
			completed = false
			return nil, nil
		}
		if l.Status == models.ListingDraft {
			return nil, errs.InvalidTransition(string(l.Status), string(models.ListingCompleted))
		}

		now := s.now().UTC()
		l.Status = models.ListingCompleted
		l.SalePrice = salePrice
		if l.Timeline.CompletedAt == nil {
			l.Timeline.CompletedAt = &now
		}
		l.Timeline.UpdatedAt = now
		completed = true
		return []models.Interaction{s.record(l, "", models.InteractionCompleted, "", now)}, nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.events.PublishListingCompleted(ctx, l)
	}
	return l, nil
}
