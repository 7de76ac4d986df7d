package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"deal-matching-api/internal/database"
	"deal-matching-api/internal/engagement"
	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/ledger"
	"deal-matching-api/internal/matching"
	"deal-matching-api/internal/models"
	"deal-matching-api/internal/reporting"
	"deal-matching-api/internal/validation"
)

// Handler provides HTTP handlers for the API. It is a thin shell around the
// core services: decode, sanitize, dispatch, encode.
type Handler struct {
	db          *database.DB
	engagement  *engagement.Service
	ledger      *ledger.Service
	reporting   *reporting.Service
	maxBodySize int64
}

// Options holds options for creating a handler.
type Options struct {
	MaxBodySize int64
}

// DefaultOptions returns default handler options.
func DefaultOptions() Options {
	return Options{MaxBodySize: 10 << 20}
}

// NewHandler creates a new handler instance.
func NewHandler(db *database.DB, eng *engagement.Service, led *ledger.Service, rep *reporting.Service) *Handler {
	return NewHandlerWithOptions(db, eng, led, rep, DefaultOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(db *database.DB, eng *engagement.Service, led *ledger.Service, rep *reporting.Service, opts Options) *Handler {
	return &Handler{
		db:          db,
		engagement:  eng,
		ledger:      led,
		reporting:   rep,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts every endpoint on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/listings", func(r chi.Router) {
		r.Post("/", h.CreateListing)
		r.Route("/{listing_id}", func(r chi.Router) {
			r.Get("/", h.GetListing)
			r.Post("/publish", h.PublishListing)
			r.Post("/complete", h.CompleteListing)
			r.Post("/target", h.TargetBuyers)
			r.Post("/request-access", h.RequestAccess)
			r.Post("/views", h.RecordView)
			r.Get("/matches", h.RankBuyers)
			r.Get("/status-summary", h.StatusSummary)
			r.Get("/interactions", h.ListingInteractionSummary)
			r.Post("/buyers/{buyer_id}/respond", h.Respond)
			r.Post("/buyers/{buyer_id}/override", h.AdminOverride)
		})
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Post("/", h.UpsertProfile)
		r.Get("/{buyer_id}", h.GetProfile)
	})

	r.Get("/buyers/{buyer_id}/listings", h.BuyerListings)
	r.Get("/sellers/{seller_id}/listings", h.SellerListings)
	r.Get("/sellers/{seller_id}/interactions", h.SellerInteractions)
	r.Get("/sellers/{seller_id}/dashboard", h.SellerDashboard)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

// actor pulls the already-authenticated caller identity from the request.
// Authentication itself happens upstream of this service.
func actor(r *http.Request) (string, models.ActorRole, error) {
	id := validation.SanitizeString(r.Header.Get("X-Actor-Id"))
	role := models.ActorRole(validation.SanitizeString(r.Header.Get("X-Actor-Role")))

	if err := validation.ValidateUUID(id, "actor_id"); err != nil {
		return "", "", err
	}
	if err := validation.ValidateRole(role); err != nil {
		return "", "", err
	}
	return id, role, nil
}

// CreateListing handles POST /listings
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var l models.Listing
	if !h.decode(w, r, &l) {
		return
	}

	l.ID = validation.SanitizeString(l.ID)
	l.SellerID = validation.SanitizeString(l.SellerID)

	if err := validation.ValidateListing(&l); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engagement.CreateListing(r.Context(), &l, actorID, role); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, l)
}

// GetListing handles GET /listings/{listing_id}
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.db.GetListing(r.Context(), chi.URLParam(r, "listing_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, l)
}

// PublishListing handles POST /listings/{listing_id}/publish
func (h *Handler) PublishListing(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.engagement.PublishListing(r.Context(), chi.URLParam(r, "listing_id"), actorID, role)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, l)
}

// CompleteListing handles POST /listings/{listing_id}/complete
func (h *Handler) CompleteListing(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.CompleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	listingID := chi.URLParam(r, "listing_id")
	l, err := h.engagement.CompleteListing(r.Context(), listingID, req.SalePrice, actorID, role)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.reporting.Invalidate(r.Context(), l.ID, l.SellerID)
	h.respondJSON(w, http.StatusOK, l)
}

// TargetBuyers handles POST /listings/{listing_id}/target
func (h *Handler) TargetBuyers(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.TargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	for i := range req.BuyerIDs {
		req.BuyerIDs[i] = validation.SanitizeString(req.BuyerIDs[i])
	}
	if len(req.BuyerIDs) == 0 {
		h.respondError(w, http.StatusBadRequest, "buyer_ids is required")
		return
	}

	listingID := chi.URLParam(r, "listing_id")
	added, err := h.engagement.Target(r.Context(), listingID, req.BuyerIDs, actorID, role)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	l, err := h.db.GetListing(r.Context(), listingID)
	if err == nil {
		h.reporting.Invalidate(r.Context(), l.ID, l.SellerID)
	}
	h.respondJSON(w, http.StatusOK, models.TargetResponse{ListingID: listingID, Targeted: added})
}

// Respond handles POST /listings/{listing_id}/buyers/{buyer_id}/respond
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.RespondRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.ValidateDecision(req.Decision); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	listingID := chi.URLParam(r, "listing_id")
	buyerID := chi.URLParam(r, "buyer_id")

	l, err := h.engagement.Respond(r.Context(), listingID, buyerID, req.Decision, validation.SanitizeString(req.Notes), actorID, role)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.reporting.Invalidate(r.Context(), l.ID, l.SellerID)
	h.respondJSON(w, http.StatusOK, l)
}

// AdminOverride handles POST /listings/{listing_id}/buyers/{buyer_id}/override
func (h *Handler) AdminOverride(w http.ResponseWriter, r *http.Request) {
	_, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if role != models.RoleAdmin {
		h.respondError(w, http.StatusForbidden, "override requires the admin role")
		return
	}

	var req models.RespondRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.ValidateDecision(req.Decision); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	listingID := chi.URLParam(r, "listing_id")
	buyerID := chi.URLParam(r, "buyer_id")

	l, err := h.engagement.AdminOverride(r.Context(), listingID, buyerID, req.Decision, validation.SanitizeString(req.Notes))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.reporting.Invalidate(r.Context(), l.ID, l.SellerID)
	h.respondJSON(w, http.StatusOK, l)
}

// RequestAccess handles POST /listings/{listing_id}/request-access
func (h *Handler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if role != models.RoleBuyer {
		h.respondError(w, http.StatusForbidden, "only buyers can request access")
		return
	}

	if err := h.engagement.RequestAccess(r.Context(), chi.URLParam(r, "listing_id"), actorID); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordView handles POST /listings/{listing_id}/views
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := actor(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engagement.RecordView(r.Context(), chi.URLParam(r, "listing_id"), actorID); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RankBuyers handles GET /listings/{listing_id}/matches
func (h *Handler) RankBuyers(w http.ResponseWriter, r *http.Request) {
	l, err := h.db.GetListing(r.Context(), chi.URLParam(r, "listing_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	profiles, err := h.db.ListProfiles(r.Context(), models.ProfileFilter{})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	matches := matching.Rank(l, profiles)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"listing_id": l.ID,
		"matches":    matches,
	})
}

// StatusSummary handles GET /listings/{listing_id}/status-summary
func (h *Handler) StatusSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reporting.StatusSummary(r.Context(), chi.URLParam(r, "listing_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}

// ListingInteractionSummary handles GET /listings/{listing_id}/interactions
func (h *Handler) ListingInteractionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.SummaryForListing(r.Context(), chi.URLParam(r, "listing_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}

// UpsertProfile handles POST /profiles
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	var p models.BuyerProfile
	if !h.decode(w, r, &p) {
		return
	}

	p.ID = validation.SanitizeString(p.ID)
	if err := validation.ValidateProfile(&p); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.UpsertProfile(r.Context(), &p); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, p)
}

// GetProfile handles GET /profiles/{buyer_id}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProfile(r.Context(), chi.URLParam(r, "buyer_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// BuyerListings handles GET /buyers/{buyer_id}/listings?bucket=active
func (h *Handler) BuyerListings(w http.ResponseWriter, r *http.Request) {
	bucket := models.Bucket(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = models.BucketActive
	}
	if err := validation.ValidateBucket(bucket); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	listings, err := h.engagement.ListingsForBuyer(r.Context(), chi.URLParam(r, "buyer_id"), bucket)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"bucket":   bucket,
		"listings": listings,
	})
}

// SellerListings handles GET /sellers/{seller_id}/listings
func (h *Handler) SellerListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.db.ListingsBySeller(r.Context(), chi.URLParam(r, "seller_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
	})
}

// SellerInteractions handles GET /sellers/{seller_id}/interactions?limit=50
func (h *Handler) SellerInteractions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.ledger.RecentForSeller(r.Context(), chi.URLParam(r, "seller_id"), limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"interactions": records,
	})
}

// SellerDashboard handles GET /sellers/{seller_id}/dashboard
func (h *Handler) SellerDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.reporting.EngagementDashboard(r.Context(), chi.URLParam(r, "seller_id"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, dashboard)
}

// decode reads a JSON body into dest with the body size capped. It writes
// the error response itself and reports whether decoding succeeded.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrPermissionDenied):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrVersionConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrConsistencyViolation):
		h.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.respondError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
