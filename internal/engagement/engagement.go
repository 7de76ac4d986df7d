// Package engagement owns the per-(listing, buyer) invitation state machine
// and the listing lifecycle.
//
// States per pair: not targeted → pending (seller-initiated) or requested
// (buyer-initiated) → accepted | rejected, with accepted and rejected
// re-enterable from each other. Every successful transition appends exactly
// one ledger record in the same transaction as the listing write.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/events"
	"deal-matching-api/internal/models"
)

// Store is the listing/ledger storage the state machine runs against.
// *database.DB satisfies it.
type Store interface {
	InsertListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	UpdateListingCAS(ctx context.Context, id string, mutate func(l *models.Listing) ([]models.Interaction, error)) (*models.Listing, error)
	ListingsTargeting(ctx context.Context, buyerID string) ([]*models.Listing, error)
	AppendInteractions(ctx context.Context, records []models.Interaction) error
}

// Policy tunes optional behavior of the state machine.
type Policy struct {
	// BuyerRequestAutoAck: a buyer request on a public listing immediately
	// targets the buyer. With it off the request lands in the ledger only
	// and the seller has to target explicitly.
	BuyerRequestAutoAck bool
}

// Service is the invitation state machine.
type Service struct {
	store  Store
	events *events.Manager
	policy Policy
	now    func() time.Time
}

// NewService creates the state machine over the given store.
func NewService(store Store, ev *events.Manager, policy Policy) *Service {
	return &Service{
		store:  store,
		events: ev,
		policy: policy,
		now:    time.Now,
	}
}

// CreateListing stores a new draft listing owned by the acting seller.
func (s *Service) CreateListing(ctx context.Context, l *models.Listing, actorID string, role models.ActorRole) error {
	if role != models.RoleAdmin && l.SellerID != actorID {
		return errs.PermissionDenied("only the owning seller can create the listing")
	}

	now := s.now().UTC()
	l.Status = models.ListingDraft
	l.Timeline = models.Timeline{CreatedAt: now, UpdatedAt: now}
	if l.Reward == "" {
		l.Reward = models.RewardSeed
	}
	if l.InvitationStatus == nil {
		l.InvitationStatus = make(map[string]models.InvitationRecord)
	}

	return s.store.InsertListing(ctx, l)
}

// Target makes buyers eligible to respond to a listing. Already-targeted ids
// are untouched: their invitation records keep whatever response they hold.
// Each newly targeted buyer gets a pending record and one ledger entry.
func (s *Service) Target(ctx context.Context, listingID string, buyerIDs []string, actorID string, role models.ActorRole) ([]string, error) {
	var added []string

	l, err := s.store.UpdateListingCAS(ctx, listingID, func(l *models.Listing) ([]models.Interaction, error) {
		if err := requireOwner(l, actorID, role); err != nil {
			return nil, err
		}

		added = added[:0]
		now := s.now().UTC()
		var records []models.Interaction
		for _, buyerID := range buyerIDs {
			if buyerID == "" || !l.AddTargeted(buyerID) {
				continue
			}
			l.InvitationStatus[buyerID] = models.InvitationRecord{
				InvitedAt: now,
				Response:  models.ResponsePending,
			}
			added = append(added, buyerID)
			records = append(records, s.record(l, buyerID, models.InteractionView, "targeted", now))
		}
		l.Timeline.UpdatedAt = now
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.events.PublishBuyerTargeted(ctx, l.ID, l.SellerID, added)
	}
	return added, nil
}

// Respond records a buyer decision on a targeted listing. Decision "active"
// is stored as accepted and adds the buyer to the interested and ever-active
// sets atomically with the map update; any other decision removes the buyer
// from interested but never from ever-active.
func (s *Service) Respond(ctx context.Context, listingID, buyerID string, decision models.Decision, notes string, actorID string, role models.ActorRole) (*models.Listing, error) {
	var response models.Response

	l, err := s.store.UpdateListingCAS(ctx, listingID, func(l *models.Listing) ([]models.Interaction, error) {
		if role == models.RoleBuyer && actorID != buyerID {
			return nil, errs.PermissionDenied("buyers can only respond for themselves")
		}
		if !l.IsTargeted(buyerID) {
			return nil, errs.PermissionDenied(fmt.Sprintf("buyer %s is not targeted by listing %s", buyerID, listingID))
		}

		records, resp, err := s.applyResponse(l, buyerID, decision, notes, role)
		if err != nil {
			return nil, err
		}
		response = resp
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishBuyerResponded(ctx, l.ID, buyerID, response, role)
	return l, nil
}

// AdminOverride records a response without the targeted-membership check.
// An untargeted buyer is added to the target set first, so every invitation
// record still belongs to a targeted buyer.
func (s *Service) AdminOverride(ctx context.Context, listingID, buyerID string, decision models.Decision, notes string) (*models.Listing, error) {
	var response models.Response

	l, err := s.store.UpdateListingCAS(ctx, listingID, func(l *models.Listing) ([]models.Interaction, error) {
		if l.AddTargeted(buyerID) {
			l.InvitationStatus[buyerID] = models.InvitationRecord{
				InvitedAt: s.now().UTC(),
				Response:  models.ResponsePending,
			}
		}

		records, resp, err := s.applyResponse(l, buyerID, decision, notes, models.RoleAdmin)
		if err != nil {
			return nil, err
		}
		response = resp
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishBuyerResponded(ctx, l.ID, buyerID, response, models.RoleAdmin)
	return l, nil
}

// RequestAccess records a buyer-initiated request on a public listing that
// does not target the buyer yet. Under the auto-ack policy the buyer is
// targeted immediately with a requested record; otherwise the request only
// lands in the ledger for the seller to act on.
func (s *Service) RequestAccess(ctx context.Context, listingID, buyerID string) error {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if !l.IsPublic {
		return errs.PermissionDenied("listing is not public")
	}
	if l.IsTargeted(buyerID) {
		// Already eligible; a request adds nothing.
		return nil
	}

	if !s.policy.BuyerRequestAutoAck {
		now := s.now().UTC()
		rec := s.record(l, buyerID, models.InteractionView, "access requested", now)
		rec.Metadata = map[string]string{"request": "true"}
		return s.store.AppendInteractions(ctx, []models.Interaction{rec})
	}

	_, err = s.store.UpdateListingCAS(ctx, listingID, func(l *models.Listing) ([]models.Interaction, error) {
		if l.IsTargeted(buyerID) {
			return nil, nil
		}
		now := s.now().UTC()
		l.AddTargeted(buyerID)
		responded := now
		l.InvitationStatus[buyerID] = models.InvitationRecord{
			InvitedAt:   now,
			RespondedAt: &responded,
			Response:    models.ResponseRequested,
			DecisionBy:  models.RoleBuyer,
		}
		l.Timeline.UpdatedAt = now
		return []models.Interaction{s.record(l, buyerID, models.InteractionView, "access requested", now)}, nil
	})
	return err
}

// RecordView appends a plain view event to the ledger. Views never mutate
// invitation state.
func (s *Service) RecordView(ctx context.Context, listingID, buyerID string) error {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	return s.store.AppendInteractions(ctx, []models.Interaction{
		s.record(l, buyerID, models.InteractionView, "", s.now().UTC()),
	})
}

// applyResponse is the shared transition body for Respond and AdminOverride.
// The interested-set update happens here, in the same mutation as the map
// write; splitting the two is what corrupted the source system.
func (s *Service) applyResponse(l *models.Listing, buyerID string, decision models.Decision, notes string, role models.ActorRole) ([]models.Interaction, models.Response, error) {
	response, recType, err := translateDecision(decision)
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	responded := now

	rec := l.InvitationStatus[buyerID]
	if rec.InvitedAt.IsZero() {
		rec.InvitedAt = now
	}
	rec.RespondedAt = &responded
	rec.Response = response
	rec.DecisionBy = role
	if notes != "" {
		rec.Notes = notes
	}
	l.InvitationStatus[buyerID] = rec

	// Interested membership mirrors the accepted response exactly, so any
	// non-accepted response clears it. Ever-active is never removed from.
	switch response {
	case models.ResponseAccepted:
		l.AddInterested(buyerID)
	default:
		l.RemoveInterested(buyerID)
	}

	l.Timeline.UpdatedAt = now
	return []models.Interaction{s.record(l, buyerID, recType, notes, now)}, response, nil
}

func translateDecision(d models.Decision) (models.Response, models.InteractionType, error) {
	switch d {
	case models.DecisionActive:
		return models.ResponseAccepted, models.InteractionInterest, nil
	case models.DecisionPending:
		return models.ResponsePending, models.InteractionView, nil
	case models.DecisionRejected:
		return models.ResponseRejected, models.InteractionRejected, nil
	default:
		return "", "", fmt.Errorf("unknown decision %q", d)
	}
}

func (s *Service) record(l *models.Listing, buyerID string, t models.InteractionType, notes string, now time.Time) models.Interaction {
	return models.Interaction{
		ID:         uuid.New().String(),
		ListingID:  l.ID,
		SellerID:   l.SellerID,
		BuyerID:    buyerID,
		Type:       t,
		OccurredAt: now,
		Notes:      notes,
	}
}

func requireOwner(l *models.Listing, actorID string, role models.ActorRole) error {
	if role == models.RoleAdmin {
		return nil
	}
	if role != models.RoleSeller || l.SellerID != actorID {
		return errs.PermissionDenied("only the owning seller can modify the listing")
	}
	return nil
}
