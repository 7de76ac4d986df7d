package engagement

import (
	"context"
	"fmt"

	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/models"
)

// BucketFor derives the view segment of one targeted buyer on one listing.
// The predicates are mutually exclusive and jointly exhaustive over the
// targeted set: exactly one bucket holds the pair at any instant. A buyer
// the listing does not target has no bucket.
func BucketFor(l *models.Listing, buyerID string) (models.Bucket, bool) {
	if !l.IsTargeted(buyerID) {
		return "", false
	}
	if l.IsInterested(buyerID) {
		if l.Status == models.ListingCompleted {
			return models.BucketCompleted, true
		}
		return models.BucketActive, true
	}
	if l.InvitationStatus[buyerID].Response == models.ResponseRejected {
		return models.BucketRejected, true
	}
	return models.BucketPending, true
}

// ListingsForBuyer returns the listings sitting in the requested bucket for
// one buyer. Completed listings only surface when the completed bucket is
// asked for explicitly.
func (s *Service) ListingsForBuyer(ctx context.Context, buyerID string, bucket models.Bucket) ([]*models.Listing, error) {
	switch bucket {
	case models.BucketActive, models.BucketPending, models.BucketRejected, models.BucketCompleted:
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}

	candidates, err := s.store.ListingsTargeting(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	var listings []*models.Listing
	for _, l := range candidates {
		if b, ok := BucketFor(l, buyerID); ok && b == bucket {
			listings = append(listings, l)
		}
	}
	return listings, nil
}

// CheckConsistency verifies the denormalization invariants of one listing
// and returns every divergence found. Violations are reported, never
// repaired in place; silent repair is how the source data rotted.
func CheckConsistency(l *models.Listing) []*errs.ConsistencyViolation {
	var violations []*errs.ConsistencyViolation

	report := func(buyerID, detail string) {
		violations = append(violations, &errs.ConsistencyViolation{
			ListingID: l.ID,
			BuyerID:   buyerID,
			Detail:    detail,
		})
	}

	// Interested membership must mirror an accepted response.
	for _, buyerID := range l.InterestedBuyers {
		if l.InvitationStatus[buyerID].Response != models.ResponseAccepted {
			report(buyerID, "in interested set without accepted response")
		}
	}
	for buyerID, rec := range l.InvitationStatus {
		if rec.Response == models.ResponseAccepted && !l.IsInterested(buyerID) {
			report(buyerID, "accepted response missing from interested set")
		}
	}

	// Every interested buyer must be in the ever-active union.
	for _, buyerID := range l.InterestedBuyers {
		if !l.WasEverActive(buyerID) {
			report(buyerID, "interested buyer missing from ever-active set")
		}
	}

	// Every invitation record belongs to a targeted buyer.
	for buyerID := range l.InvitationStatus {
		if !l.IsTargeted(buyerID) {
			report(buyerID, "invitation record for untargeted buyer")
		}
	}

	return violations
}
