package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"deal-matching-api/internal/database"
	"deal-matching-api/internal/models"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	dbPath := "./test_" + time.Now().Format("20060102150405") + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func record(listingID, sellerID, buyerID string, typ models.InteractionType, at time.Time) models.Interaction {
	return models.Interaction{
		ID:         uuid.New().String(),
		ListingID:  listingID,
		SellerID:   sellerID,
		BuyerID:    buyerID,
		Type:       typ,
		OccurredAt: at,
	}
}

func TestRecentForSeller_OrderAndLimit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	sellerID := uuid.New().String()
	listingID := uuid.New().String()
	buyerID := uuid.New().String()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	var records []models.Interaction
	for i := 0; i < 5; i++ {
		records = append(records, record(listingID, sellerID, buyerID, models.InteractionView, base.Add(time.Duration(i)*time.Minute)))
	}
	// Another seller's record must not leak in.
	records = append(records, record(uuid.New().String(), uuid.New().String(), buyerID, models.InteractionView, base.Add(time.Hour)))

	if err := db.AppendInteractions(context.Background(), records); err != nil {
		t.Fatalf("Failed to append interactions: %v", err)
	}

	got, err := svc.RecentForSeller(context.Background(), sellerID, 3)
	if err != nil {
		t.Fatalf("Failed to load recent records: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].OccurredAt.After(got[i-1].OccurredAt) {
			t.Error("Expected newest-first ordering")
		}
	}
	if !got[0].OccurredAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("Expected the newest record first, got %v", got[0].OccurredAt)
	}

	// Limit <= 0 falls back to the default page size.
	got, err = svc.RecentForSeller(context.Background(), sellerID, 0)
	if err != nil {
		t.Fatalf("Failed to load recent records: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("Expected all 5 seller records under the default limit, got %d", len(got))
	}
}

func TestSummaryForListing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	sellerID := uuid.New().String()
	listingID := uuid.New().String()
	buyerA := uuid.New().String()
	buyerB := uuid.New().String()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	records := []models.Interaction{
		record(listingID, sellerID, buyerA, models.InteractionView, base),
		record(listingID, sellerID, buyerA, models.InteractionInterest, base.Add(time.Minute)),
		record(listingID, sellerID, buyerB, models.InteractionView, base.Add(2*time.Minute)),
		record(listingID, sellerID, buyerB, models.InteractionRejected, base.Add(3*time.Minute)),
		record(listingID, sellerID, "", models.InteractionCompleted, base.Add(4*time.Minute)),
	}
	if err := db.AppendInteractions(context.Background(), records); err != nil {
		t.Fatalf("Failed to append interactions: %v", err)
	}

	summary, err := svc.SummaryForListing(context.Background(), listingID)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}

	if summary.Total != 5 {
		t.Errorf("Expected total 5, got %d", summary.Total)
	}
	if summary.CountsByType[models.InteractionView] != 2 {
		t.Errorf("Expected 2 views, got %d", summary.CountsByType[models.InteractionView])
	}
	if summary.CountsByType[models.InteractionInterest] != 1 {
		t.Errorf("Expected 1 interest, got %d", summary.CountsByType[models.InteractionInterest])
	}
	if summary.CountsByType[models.InteractionRejected] != 1 {
		t.Errorf("Expected 1 rejection, got %d", summary.CountsByType[models.InteractionRejected])
	}
	// The listing-level completion has no buyer and must not count one.
	if summary.DistinctBuyers != 2 {
		t.Errorf("Expected 2 distinct buyers, got %d", summary.DistinctBuyers)
	}
}

func TestCurrentStatusFromLedger(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	sellerID := uuid.New().String()
	listingID := uuid.New().String()
	buyerID := uuid.New().String()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// No history at all.
	if _, ok, err := svc.CurrentStatusFromLedger(context.Background(), listingID, buyerID); err != nil || ok {
		t.Fatalf("Expected no status without history, got ok=%v err=%v", ok, err)
	}

	steps := []struct {
		typ      models.InteractionType
		expected models.Response
	}{
		{models.InteractionView, models.ResponsePending},
		{models.InteractionInterest, models.ResponseAccepted},
		{models.InteractionRejected, models.ResponseRejected},
	}

	for i, step := range steps {
		rec := record(listingID, sellerID, buyerID, step.typ, base.Add(time.Duration(i)*time.Minute))
		if err := db.AppendInteractions(context.Background(), []models.Interaction{rec}); err != nil {
			t.Fatalf("Failed to append interaction: %v", err)
		}

		status, ok, err := svc.CurrentStatusFromLedger(context.Background(), listingID, buyerID)
		if err != nil {
			t.Fatalf("Failed to reconstruct status: %v", err)
		}
		if !ok {
			t.Fatal("Expected a reconstructed status")
		}
		if status != step.expected {
			t.Errorf("After %s: expected %s, got %s", step.typ, step.expected, status)
		}
	}
}
