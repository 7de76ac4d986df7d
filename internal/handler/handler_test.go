package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"deal-matching-api/internal/database"
	"deal-matching-api/internal/engagement"
	"deal-matching-api/internal/events"
	"deal-matching-api/internal/ledger"
	"deal-matching-api/internal/models"
	"deal-matching-api/internal/reporting"
)

func setupTestHandler(t *testing.T) (http.Handler, func()) {
	dbPath := "./test_" + time.Now().Format("20060102150405") + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	eng := engagement.NewService(db, events.NewManager(false), engagement.Policy{BuyerRequestAutoAck: true})
	led := ledger.NewService(db)
	rep := reporting.NewService(db, db, nil)
	h := NewHandler(db, eng, led, rep)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return h.Routes(), cleanup
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, actorID string, role models.ActorRole) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
		req.Header.Set("X-Actor-Role", string(role))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	if err := json.NewDecoder(w.Body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func listingPayload(sellerID string) map[string]interface{} {
	return map[string]interface{}{
		"id":           uuid.New().String(),
		"seller_id":    sellerID,
		"sector":       "SaaS",
		"geography":    "France",
		"reward_level": "bloom",
		"is_public":    true,
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	w := doRequest(t, router, http.MethodGet, "/health", nil, "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestListingFlow(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	sellerID := uuid.New().String()
	buyerID := uuid.New().String()

	// Create.
	w := doRequest(t, router, http.MethodPost, "/listings", listingPayload(sellerID), sellerID, models.RoleSeller)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating listing, got %d: %s", w.Code, w.Body.String())
	}
	var created models.Listing
	decodeBody(t, w, &created)
	if created.Status != models.ListingDraft {
		t.Errorf("Expected draft status, got %s", created.Status)
	}

	// Publish.
	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/publish", nil, sellerID, models.RoleSeller)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 publishing, got %d: %s", w.Code, w.Body.String())
	}
	var published models.Listing
	decodeBody(t, w, &published)
	if published.Status != models.ListingActive {
		t.Errorf("Expected active status, got %s", published.Status)
	}

	// Target a buyer.
	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/target",
		models.TargetRequest{BuyerIDs: []string{buyerID}}, sellerID, models.RoleSeller)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 targeting, got %d: %s", w.Code, w.Body.String())
	}
	var targeted models.TargetResponse
	decodeBody(t, w, &targeted)
	if len(targeted.Targeted) != 1 || targeted.Targeted[0] != buyerID {
		t.Errorf("Expected buyer newly targeted, got %v", targeted.Targeted)
	}

	// Buyer accepts.
	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/buyers/"+buyerID+"/respond",
		models.RespondRequest{Decision: models.DecisionActive}, buyerID, models.RoleBuyer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 responding, got %d: %s", w.Code, w.Body.String())
	}
	var responded models.Listing
	decodeBody(t, w, &responded)
	if !responded.IsInterested(buyerID) {
		t.Error("Expected buyer in interested set")
	}

	// Status summary reflects the acceptance.
	w = doRequest(t, router, http.MethodGet, "/listings/"+created.ID+"/status-summary", nil, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for summary, got %d: %s", w.Code, w.Body.String())
	}
	var summary reporting.StatusSummary
	decodeBody(t, w, &summary)
	if summary.Counts.Active != 1 {
		t.Errorf("Expected one active buyer, got %+v", summary.Counts)
	}

	// Complete with a sale price.
	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/complete",
		models.CompleteRequest{SalePrice: 2_000_000}, sellerID, models.RoleSeller)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 completing, got %d: %s", w.Code, w.Body.String())
	}
	var completed models.Listing
	decodeBody(t, w, &completed)
	if completed.Status != models.ListingCompleted || completed.SalePrice != 2_000_000 {
		t.Errorf("Expected completed listing at 2M, got %s / %f", completed.Status, completed.SalePrice)
	}

	// The ledger saw one record per transition plus the completion.
	w = doRequest(t, router, http.MethodGet, "/listings/"+created.ID+"/interactions", nil, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for interactions, got %d: %s", w.Code, w.Body.String())
	}
	var ledgerSummary ledger.Summary
	decodeBody(t, w, &ledgerSummary)
	if ledgerSummary.Total != 3 {
		t.Errorf("Expected 3 ledger records, got %d", ledgerSummary.Total)
	}

	// The seller's inventory shows the listing.
	w = doRequest(t, router, http.MethodGet, "/sellers/"+sellerID+"/listings", nil, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for seller listings, got %d", w.Code)
	}
	var inventory struct {
		Listings []*models.Listing `json:"listings"`
	}
	decodeBody(t, w, &inventory)
	if len(inventory.Listings) != 1 || inventory.Listings[0].ID != created.ID {
		t.Errorf("Expected the seller's listing in inventory, got %d listings", len(inventory.Listings))
	}
}

func TestRespond_UntargetedBuyerForbidden(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	sellerID := uuid.New().String()
	buyerID := uuid.New().String()

	w := doRequest(t, router, http.MethodPost, "/listings", listingPayload(sellerID), sellerID, models.RoleSeller)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	var created models.Listing
	decodeBody(t, w, &created)

	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/buyers/"+buyerID+"/respond",
		models.RespondRequest{Decision: models.DecisionActive}, buyerID, models.RoleBuyer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for untargeted buyer, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminOverride_RequiresAdminRole(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	sellerID := uuid.New().String()
	buyerID := uuid.New().String()

	w := doRequest(t, router, http.MethodPost, "/listings", listingPayload(sellerID), sellerID, models.RoleSeller)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	var created models.Listing
	decodeBody(t, w, &created)

	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/buyers/"+buyerID+"/override",
		models.RespondRequest{Decision: models.DecisionActive}, sellerID, models.RoleSeller)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin override, got %d", w.Code)
	}

	adminID := uuid.New().String()
	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/buyers/"+buyerID+"/override",
		models.RespondRequest{Decision: models.DecisionActive}, adminID, models.RoleAdmin)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for admin override, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateListing_Validation(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	sellerID := uuid.New().String()

	// Missing sector.
	payload := listingPayload(sellerID)
	delete(payload, "sector")
	w := doRequest(t, router, http.MethodPost, "/listings", payload, sellerID, models.RoleSeller)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing sector, got %d", w.Code)
	}

	// Malformed actor identity.
	w = doRequest(t, router, http.MethodPost, "/listings", listingPayload(sellerID), "not-a-uuid", models.RoleSeller)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed actor id, got %d", w.Code)
	}

	// Missing body.
	w = doRequest(t, router, http.MethodPost, "/listings", nil, sellerID, models.RoleSeller)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty body, got %d", w.Code)
	}
}

func TestGetListing_NotFound(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	w := doRequest(t, router, http.MethodGet, "/listings/"+uuid.New().String(), nil, "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestRankBuyers_WorkedExample(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	sellerID := uuid.New().String()
	buyerID := uuid.New().String()

	payload := listingPayload(sellerID)
	payload["trailing_ebitda"] = 0
	w := doRequest(t, router, http.MethodPost, "/listings", payload, sellerID, models.RoleSeller)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created models.Listing
	decodeBody(t, w, &created)

	profile := map[string]interface{}{
		"id":               buyerID,
		"display_name":     "Meridian Partners",
		"target_countries": []string{"France"},
		"target_sectors":   []string{"SaaS"},
		"ebitda_min":       0,
		"ebitda_max":       1_000_000,
	}
	w = doRequest(t, router, http.MethodPost, "/profiles", profile, "", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 upserting profile, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodGet, "/listings/"+created.ID+"/matches", nil, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for matches, got %d: %s", w.Code, w.Body.String())
	}

	var result struct {
		ListingID string           `json:"listing_id"`
		Matches   []matchingResult `json:"matches"`
	}
	decodeBody(t, w, &result)
	if len(result.Matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].BuyerID != buyerID {
		t.Errorf("Expected buyer %s, got %s", buyerID, result.Matches[0].BuyerID)
	}
	if result.Matches[0].Percentage != 43 {
		t.Errorf("Expected 43%%, got %d", result.Matches[0].Percentage)
	}
}

type matchingResult struct {
	BuyerID    string `json:"buyer_id"`
	Percentage int    `json:"percentage"`
}

func TestBuyerListings_BucketValidation(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	buyerID := uuid.New().String()

	w := doRequest(t, router, http.MethodGet, "/buyers/"+buyerID+"/listings?bucket=bogus", nil, "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown bucket, got %d", w.Code)
	}

	w = doRequest(t, router, http.MethodGet, "/buyers/"+buyerID+"/listings?bucket=pending", nil, "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for a valid bucket, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequestAccess_BuyersOnly(t *testing.T) {
	router, cleanup := setupTestHandler(t)
	defer cleanup()

	sellerID := uuid.New().String()
	buyerID := uuid.New().String()

	w := doRequest(t, router, http.MethodPost, "/listings", listingPayload(sellerID), sellerID, models.RoleSeller)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	var created models.Listing
	decodeBody(t, w, &created)

	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/request-access", nil, sellerID, models.RoleSeller)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a non-buyer request, got %d", w.Code)
	}

	w = doRequest(t, router, http.MethodPost, "/listings/"+created.ID+"/request-access", nil, buyerID, models.RoleBuyer)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for a buyer request, got %d: %s", w.Code, w.Body.String())
	}

	// The request under auto-ack makes the buyer targeted, visible in the
	// pending bucket.
	w = doRequest(t, router, http.MethodGet, "/buyers/"+buyerID+"/listings?bucket=pending", nil, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var buckets struct {
		Bucket   models.Bucket     `json:"bucket"`
		Listings []*models.Listing `json:"listings"`
	}
	decodeBody(t, w, &buckets)
	if len(buckets.Listings) != 1 || buckets.Listings[0].ID != created.ID {
		t.Errorf("Expected the requested listing in pending, got %d listings", len(buckets.Listings))
	}
}
