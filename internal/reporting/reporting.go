// Package reporting summarizes state-machine and ledger data into
// seller-facing views.
package reporting

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"deal-matching-api/internal/cache"
	"deal-matching-api/internal/engagement"
	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/models"
)

const (
	summaryTTL   = time.Minute
	dashboardTTL = 5 * time.Minute
)

// Store is the listing/ledger storage reporting reads from.
// *database.DB satisfies it.
type Store interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	InteractionsByListing(ctx context.Context, listingID string) ([]models.Interaction, error)
	InteractionsBySeller(ctx context.Context, sellerID string) ([]models.Interaction, error)
}

// CriteriaStore supplies buyer display data. Read-only. *database.DB
// satisfies it; in production it fronts the external profile service.
type CriteriaStore interface {
	GetProfile(ctx context.Context, id string) (*models.BuyerProfile, error)
}

// BuyerStatusEntry is one buyer row in a status summary.
type BuyerStatusEntry struct {
	BuyerID     string          `json:"buyer_id"`
	DisplayName string          `json:"display_name,omitempty"`
	CompanyName string          `json:"company_name,omitempty"`
	Response    models.Response `json:"response"`
	InvitedAt   *time.Time      `json:"invited_at,omitempty"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
	// FromLedger marks entries reconstructed from the interaction history
	// for buyers the invitation map does not know about.
	FromLedger bool `json:"from_ledger,omitempty"`
}

// Counts are the segmentation cardinalities over targeted buyers.
type Counts struct {
	Active   int `json:"active"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

// StatusSummary answers "what is every buyer's status on this deal".
type StatusSummary struct {
	ListingID string             `json:"listing_id"`
	Active    []BuyerStatusEntry `json:"active"`
	Pending   []BuyerStatusEntry `json:"pending"`
	Rejected  []BuyerStatusEntry `json:"rejected"`
	// Counts covers targeted buyers only, so it matches the buyer-facing
	// segmentation; ledger-reconstructed entries appear in the lists but
	// not here.
	Counts Counts `json:"counts"`
	// ConsistencyWarning flags detected divergence between the invitation
	// map and the interested set. The data returned is best-effort.
	ConsistencyWarning bool     `json:"consistency_warning,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// DashboardDay is one day of a seller's engagement series.
type DashboardDay struct {
	Date        string `json:"date"` // YYYY-MM-DD, UTC
	Views       int    `json:"views"`
	Interests   int    `json:"interests"`
	Rejections  int    `json:"rejections"`
	Completions int    `json:"completions"`
	Total       int    `json:"total"`
}

// ListingEngagement is one listing's engagement rate.
type ListingEngagement struct {
	ListingID      string  `json:"listing_id"`
	Interactions   int     `json:"interactions"`
	Activations    int     `json:"activations"`
	EngagementRate float64 `json:"engagement_rate"`
}

// Dashboard aggregates a seller's ledger into time series and rates.
type Dashboard struct {
	SellerID    string              `json:"seller_id"`
	Days        []DashboardDay      `json:"days"`
	Listings    []ListingEngagement `json:"listings"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Service builds reporting views.
type Service struct {
	store    Store
	profiles CriteriaStore
	cache    cache.Cache // nil disables caching
	// Strict turns consistency warnings into errors. Off by default so
	// reporting stays available during data repair.
	Strict bool
}

// NewService creates a reporting service. cache may be nil.
func NewService(store Store, profiles CriteriaStore, c cache.Cache) *Service {
	return &Service{store: store, profiles: profiles, cache: c}
}

// StatusSummary merges the authoritative invitation map with ledger-derived
// entries for buyers the map lacks, bucketed active/pending/rejected and
// enriched with profile display data.
func (s *Service) StatusSummary(ctx context.Context, listingID string) (*StatusSummary, error) {
	cacheKey := "summary:" + listingID
	if s.cache != nil {
		var cached StatusSummary
		if err := cache.GetJSON(ctx, s.cache, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	summary := &StatusSummary{ListingID: listingID}

	if violations := engagement.CheckConsistency(l); len(violations) > 0 {
		if s.Strict {
			return nil, violations[0]
		}
		summary.ConsistencyWarning = true
		for _, v := range violations {
			summary.Warnings = append(summary.Warnings, v.Error())
			log.Printf("reporting: %v", v)
		}
	}

	// Targeted buyers bucket by the same predicates as the buyer-facing
	// segmentation, so the counts line up with what buyers see.
	for _, buyerID := range l.TargetedBuyers {
		bucket, ok := engagement.BucketFor(l, buyerID)
		if !ok {
			continue
		}
		rec := l.InvitationStatus[buyerID]
		entry := s.entry(ctx, buyerID, rec.Response, &rec, false)
		switch bucket {
		case models.BucketActive, models.BucketCompleted:
			summary.Active = append(summary.Active, entry)
			summary.Counts.Active++
		case models.BucketRejected:
			summary.Rejected = append(summary.Rejected, entry)
			summary.Counts.Rejected++
		default:
			summary.Pending = append(summary.Pending, entry)
			summary.Counts.Pending++
		}
	}

	if err := s.mergeLedgerOnly(ctx, l, summary); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, summary, summaryTTL); err != nil {
			log.Printf("reporting: failed to cache summary for %s: %v", listingID, err)
		}
	}
	return summary, nil
}

// mergeLedgerOnly adds buyers that interacted before being formally
// targeted: their status is reconstructed from their latest ledger record.
func (s *Service) mergeLedgerOnly(ctx context.Context, l *models.Listing, summary *StatusSummary) error {
	records, err := s.store.InteractionsByListing(ctx, l.ID)
	if err != nil {
		return err
	}

	latest := make(map[string]models.Interaction)
	for _, rec := range records { // oldest first, so the last write wins
		if rec.BuyerID != "" {
			latest[rec.BuyerID] = rec
		}
	}

	var extra []string
	for buyerID := range latest {
		if l.IsTargeted(buyerID) {
			continue
		}
		if _, known := l.InvitationStatus[buyerID]; known {
			continue
		}
		extra = append(extra, buyerID)
	}
	sort.Strings(extra)

	for _, buyerID := range extra {
		rec := latest[buyerID]
		occurred := rec.OccurredAt
		entry := s.entry(ctx, buyerID, "", nil, true)
		entry.RespondedAt = &occurred

		switch rec.Type {
		case models.InteractionInterest:
			entry.Response = models.ResponseAccepted
			summary.Active = append(summary.Active, entry)
		case models.InteractionRejected:
			entry.Response = models.ResponseRejected
			summary.Rejected = append(summary.Rejected, entry)
		default:
			entry.Response = models.ResponsePending
			summary.Pending = append(summary.Pending, entry)
		}
	}
	return nil
}

func (s *Service) entry(ctx context.Context, buyerID string, response models.Response, rec *models.InvitationRecord, fromLedger bool) BuyerStatusEntry {
	entry := BuyerStatusEntry{BuyerID: buyerID, Response: response, FromLedger: fromLedger}
	if rec != nil {
		invited := rec.InvitedAt
		entry.InvitedAt = &invited
		entry.RespondedAt = rec.RespondedAt
	}

	if p, err := s.profiles.GetProfile(ctx, buyerID); err == nil {
		entry.DisplayName = p.DisplayName
		entry.CompanyName = p.CompanyName
	} else if !errors.Is(err, errs.ErrNotFound) {
		log.Printf("reporting: failed to load profile %s: %v", buyerID, err)
	}
	return entry
}

// EngagementDashboard aggregates a seller's ledger into a daily series and
// a per-listing engagement rate (activations over total interactions).
func (s *Service) EngagementDashboard(ctx context.Context, sellerID string) (*Dashboard, error) {
	cacheKey := "dashboard:" + sellerID
	if s.cache != nil {
		var cached Dashboard
		if err := cache.GetJSON(ctx, s.cache, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	records, err := s.store.InteractionsBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	days := make(map[string]*DashboardDay)
	perListing := make(map[string]*ListingEngagement)

	for _, rec := range records {
		date := rec.OccurredAt.UTC().Format("2006-01-02")
		day, ok := days[date]
		if !ok {
			day = &DashboardDay{Date: date}
			days[date] = day
		}
		day.Total++
		switch rec.Type {
		case models.InteractionView:
			day.Views++
		case models.InteractionInterest:
			day.Interests++
		case models.InteractionRejected:
			day.Rejections++
		case models.InteractionCompleted:
			day.Completions++
		}

		le, ok := perListing[rec.ListingID]
		if !ok {
			le = &ListingEngagement{ListingID: rec.ListingID}
			perListing[rec.ListingID] = le
		}
		le.Interactions++
		if rec.Type == models.InteractionInterest {
			le.Activations++
		}
	}

	dashboard := &Dashboard{SellerID: sellerID, GeneratedAt: time.Now().UTC()}
	for _, day := range days {
		dashboard.Days = append(dashboard.Days, *day)
	}
	sort.Slice(dashboard.Days, func(i, j int) bool {
		return dashboard.Days[i].Date < dashboard.Days[j].Date
	})
	for _, le := range perListing {
		if le.Interactions > 0 {
			le.EngagementRate = float64(le.Activations) / float64(le.Interactions)
		}
		dashboard.Listings = append(dashboard.Listings, *le)
	}
	sort.Slice(dashboard.Listings, func(i, j int) bool {
		return dashboard.Listings[i].ListingID < dashboard.Listings[j].ListingID
	})

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, dashboard, dashboardTTL); err != nil {
			log.Printf("reporting: failed to cache dashboard for %s: %v", sellerID, err)
		}
	}
	return dashboard, nil
}

// Invalidate drops cached views touched by a write to the listing.
func (s *Service) Invalidate(ctx context.Context, listingID, sellerID string) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{"summary:" + listingID, "dashboard:" + sellerID} {
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Printf("reporting: failed to invalidate %s: %v", key, err)
		}
	}
}
