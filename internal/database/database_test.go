package database

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/models"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	dbPath := "./test_" + time.Now().Format("20060102150405") + ".db"
	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func sampleListing(sellerID string) *models.Listing {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	buyerID := uuid.New().String()
	return &models.Listing{
		ID:                  uuid.New().String(),
		SellerID:            sellerID,
		Status:              models.ListingActive,
		Reward:              models.RewardBloom,
		IsPublic:            true,
		Sector:              "SaaS",
		Geography:           "France",
		YearsInBusiness:     7,
		StakePercent:        80,
		RecurringRevenue:    true,
		TrailingRevenue:     3_000_000,
		TrailingEBITDA:      600_000,
		AvgRevenueGrowth:    12,
		AskingPrice:         5_000_000,
		AllowedCapitalTypes: []string{"investment fund"},
		TargetedBuyers:      []string{buyerID},
		InterestedBuyers:    []string{buyerID},
		EverActiveBuyers:    []string{buyerID},
		InvitationStatus: map[string]models.InvitationRecord{
			buyerID: {InvitedAt: now, Response: models.ResponseAccepted, DecisionBy: models.RoleBuyer},
		},
		Timeline: models.Timeline{CreatedAt: now, UpdatedAt: now, PublishedAt: &now},
	}
}

func TestListingRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	sellerID := uuid.New().String()
	l := sampleListing(sellerID)

	if err := db.InsertListing(context.Background(), l); err != nil {
		t.Fatalf("Failed to insert listing: %v", err)
	}
	if l.Version != 1 {
		t.Errorf("Expected version 1 after insert, got %d", l.Version)
	}

	got, err := db.GetListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Failed to load listing: %v", err)
	}

	if got.SellerID != sellerID || got.Status != models.ListingActive || got.Reward != models.RewardBloom {
		t.Errorf("Listing fields did not survive the round trip: %+v", got)
	}
	if !reflect.DeepEqual(got.TargetedBuyers, l.TargetedBuyers) {
		t.Errorf("Targeted set mismatch: %v vs %v", got.TargetedBuyers, l.TargetedBuyers)
	}
	if !reflect.DeepEqual(got.InterestedBuyers, l.InterestedBuyers) {
		t.Errorf("Interested set mismatch: %v vs %v", got.InterestedBuyers, l.InterestedBuyers)
	}
	buyerID := l.TargetedBuyers[0]
	if got.InvitationStatus[buyerID].Response != models.ResponseAccepted {
		t.Errorf("Invitation map mismatch: %+v", got.InvitationStatus)
	}
	if got.Timeline.PublishedAt == nil || !got.Timeline.PublishedAt.Equal(*l.Timeline.PublishedAt) {
		t.Errorf("PublishedAt mismatch: %v", got.Timeline.PublishedAt)
	}
	if got.Timeline.CompletedAt != nil {
		t.Errorf("Expected nil CompletedAt, got %v", got.Timeline.CompletedAt)
	}
}

func TestGetListing_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetListing(context.Background(), uuid.New().String())
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestUpdateListingCAS(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	sellerID := uuid.New().String()
	l := sampleListing(sellerID)
	if err := db.InsertListing(context.Background(), l); err != nil {
		t.Fatalf("Failed to insert listing: %v", err)
	}

	newBuyer := uuid.New().String()
	updated, err := db.UpdateListingCAS(context.Background(), l.ID, func(l *models.Listing) ([]models.Interaction, error) {
		l.AddTargeted(newBuyer)
		return []models.Interaction{{
			ID:         uuid.New().String(),
			ListingID:  l.ID,
			SellerID:   l.SellerID,
			BuyerID:    newBuyer,
			Type:       models.InteractionView,
			OccurredAt: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
		}}, nil
	})
	if err != nil {
		t.Fatalf("Failed to update listing: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Expected version 2 after update, got %d", updated.Version)
	}

	// The mutation and its ledger record landed together.
	got, err := db.GetListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Failed to reload listing: %v", err)
	}
	if !got.IsTargeted(newBuyer) {
		t.Error("Expected the mutation to be persisted")
	}
	records, err := db.InteractionsByListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Failed to load ledger: %v", err)
	}
	if len(records) != 1 || records[0].BuyerID != newBuyer {
		t.Errorf("Expected the ledger record appended with the update, got %v", records)
	}
}

func TestUpdateListingCAS_MutationErrorAborts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	sellerID := uuid.New().String()
	l := sampleListing(sellerID)
	if err := db.InsertListing(context.Background(), l); err != nil {
		t.Fatalf("Failed to insert listing: %v", err)
	}

	boom := errors.New("boom")
	_, err := db.UpdateListingCAS(context.Background(), l.ID, func(l *models.Listing) ([]models.Interaction, error) {
		l.Status = models.ListingCompleted
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the mutation error back, got %v", err)
	}

	got, err := db.GetListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Failed to reload listing: %v", err)
	}
	if got.Status != models.ListingActive {
		t.Errorf("Expected the aborted mutation not to persist, got status %s", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("Expected version unchanged, got %d", got.Version)
	}
}

func TestListingsTargeting(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	sellerID := uuid.New().String()
	buyerID := uuid.New().String()

	targeting := sampleListing(sellerID)
	targeting.TargetedBuyers = append(targeting.TargetedBuyers, buyerID)
	other := sampleListing(sellerID)

	if err := db.InsertListing(context.Background(), targeting); err != nil {
		t.Fatalf("Failed to insert listing: %v", err)
	}
	if err := db.InsertListing(context.Background(), other); err != nil {
		t.Fatalf("Failed to insert listing: %v", err)
	}

	listings, err := db.ListingsTargeting(context.Background(), buyerID)
	if err != nil {
		t.Fatalf("Failed to query targeting listings: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != targeting.ID {
		t.Errorf("Expected only the targeting listing, got %d", len(listings))
	}
}

func TestProfileRoundTripAndFilter(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	min := 500_000.0
	french := models.BuyerProfile{
		ID:              uuid.New().String(),
		DisplayName:     "Harbor Capital",
		TargetCountries: []string{"France"},
		TargetSectors:   []string{"SaaS"},
		EBITDAMin:       &min,
	}
	european := models.BuyerProfile{
		ID:              uuid.New().String(),
		DisplayName:     "Continental Holdings",
		TargetCountries: []string{"Europe"},
		TargetSectors:   []string{"Manufacturing"},
	}
	optedOut := models.BuyerProfile{
		ID:              uuid.New().String(),
		DisplayName:     "Quiet Fund",
		TargetCountries: []string{"France"},
		TargetSectors:   []string{"SaaS"},
		Preferences:     models.Preferences{StopSendingDeals: true},
	}

	for _, p := range []models.BuyerProfile{french, european, optedOut} {
		if err := db.UpsertProfile(context.Background(), &p); err != nil {
			t.Fatalf("Failed to upsert profile: %v", err)
		}
	}

	got, err := db.GetProfile(context.Background(), french.ID)
	if err != nil {
		t.Fatalf("Failed to load profile: %v", err)
	}
	if got.DisplayName != "Harbor Capital" {
		t.Errorf("Expected display name to survive, got %q", got.DisplayName)
	}
	if got.EBITDAMin == nil || *got.EBITDAMin != min {
		t.Errorf("Expected the pointer bound to survive, got %v", got.EBITDAMin)
	}

	if _, err := db.GetProfile(context.Background(), uuid.New().String()); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Expected not-found for an unknown profile, got %v", err)
	}

	// Opted-out profiles stay out of candidate scans by default.
	all, err := db.ListProfiles(context.Background(), models.ProfileFilter{})
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 profiles without opt-outs, got %d", len(all))
	}

	withOptOut, err := db.ListProfiles(context.Background(), models.ProfileFilter{IncludeOptOut: true})
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(withOptOut) != 3 {
		t.Errorf("Expected 3 profiles including opt-outs, got %d", len(withOptOut))
	}

	// Country filtering honors the geographic hierarchy: a profile
	// targeting "Europe" matches a scan for France.
	france, err := db.ListProfiles(context.Background(), models.ProfileFilter{Country: "France"})
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(france) != 2 {
		t.Errorf("Expected 2 profiles matching France, got %d", len(france))
	}

	saas, err := db.ListProfiles(context.Background(), models.ProfileFilter{Country: "France", Sector: "saas"})
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(saas) != 1 || saas[0].ID != french.ID {
		t.Errorf("Expected only the SaaS profile, got %d", len(saas))
	}

	limited, err := db.ListProfiles(context.Background(), models.ProfileFilter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected the limit respected, got %d", len(limited))
	}
}
