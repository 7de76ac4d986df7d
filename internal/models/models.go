package models

import "time"

// ListingStatus is the lifecycle status of a listing.
type ListingStatus string

const (
	ListingDraft     ListingStatus = "draft"
	ListingActive    ListingStatus = "active"
	ListingCompleted ListingStatus = "completed"
)

// RewardLevel is the visibility tier of a listing.
type RewardLevel string

const (
	RewardSeed  RewardLevel = "seed"
	RewardBloom RewardLevel = "bloom"
	RewardFruit RewardLevel = "fruit"
)

// Response is the stored per-buyer invitation response.
type Response string

const (
	ResponsePending   Response = "pending"
	ResponseRequested Response = "requested"
	ResponseAccepted  Response = "accepted"
	ResponseRejected  Response = "rejected"
)

// Decision is the caller-facing decision on an invitation.
// Decision "active" is stored as ResponseAccepted.
type Decision string

const (
	DecisionActive   Decision = "active"
	DecisionPending  Decision = "pending"
	DecisionRejected Decision = "rejected"
)

// ActorRole identifies who performed an operation. The caller is already
// authenticated upstream; the core only records the role.
type ActorRole string

const (
	RoleBuyer  ActorRole = "buyer"
	RoleSeller ActorRole = "seller"
	RoleAdmin  ActorRole = "admin"
)

// InteractionType classifies a ledger record.
type InteractionType string

const (
	InteractionView      InteractionType = "view"
	InteractionInterest  InteractionType = "interest"
	InteractionRejected  InteractionType = "rejected"
	InteractionCompleted InteractionType = "completed"
)

// Bucket is a buyer-facing view segment. Buckets are derived, never stored.
type Bucket string

const (
	BucketActive    Bucket = "active"
	BucketPending   Bucket = "pending"
	BucketRejected  Bucket = "rejected"
	BucketCompleted Bucket = "completed"
)

// BusinessModel is one of the four business-model flags a buyer can prefer.
type BusinessModel string

const (
	ModelRecurringRevenue BusinessModel = "recurring_revenue"
	ModelProjectBased     BusinessModel = "project_based"
	ModelAssetLight       BusinessModel = "asset_light"
	ModelAssetHeavy       BusinessModel = "asset_heavy"
)

// InvitationRecord tracks one buyer's response lifecycle on one listing.
type InvitationRecord struct {
	InvitedAt   time.Time  `json:"invited_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	Response    Response   `json:"response"`
	DecisionBy  ActorRole  `json:"decision_by,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Timeline holds the listing lifecycle timestamps.
type Timeline struct {
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Listing is a sell-side acquisition opportunity.
//
// TargetedBuyers, InterestedBuyers and EverActiveBuyers are denormalized
// membership sets kept consistent with InvitationStatus by the engagement
// state machine: a buyer is in InterestedBuyers iff its stored response is
// accepted, EverActiveBuyers only ever grows, and every key of
// InvitationStatus is targeted.
type Listing struct {
	ID       string        `json:"id"`        // uuid
	SellerID string        `json:"seller_id"` // uuid
	Status   ListingStatus `json:"status"`
	Reward   RewardLevel   `json:"reward_level"`
	IsPublic bool          `json:"is_public"`

	Sector               string   `json:"sector"`
	Geography            string   `json:"geography"` // single country
	YearsInBusiness      int      `json:"years_in_business"`
	StakePercent         float64  `json:"stake_percent"`
	RecurringRevenue     bool     `json:"recurring_revenue"`
	ProjectBased         bool     `json:"project_based"`
	AssetLight           bool     `json:"asset_light"`
	AssetHeavy           bool     `json:"asset_heavy"`
	TrailingRevenue      float64  `json:"trailing_revenue"`
	TrailingEBITDA       float64  `json:"trailing_ebitda"`
	AvgRevenueGrowth     float64  `json:"avg_revenue_growth"` // percent
	AskingPrice          float64  `json:"asking_price"`
	AllowedCapitalTypes  []string `json:"allowed_capital_types,omitempty"`
	MinTransactionSize   float64  `json:"min_transaction_size,omitempty"`
	MinPriorAcquisitions int      `json:"min_prior_acquisitions,omitempty"`
	AllowedCompanyTypes  []string `json:"allowed_company_types,omitempty"`

	TargetedBuyers   []string                    `json:"targeted_buyers"`
	InterestedBuyers []string                    `json:"interested_buyers"`
	EverActiveBuyers []string                    `json:"ever_active_buyers"`
	InvitationStatus map[string]InvitationRecord `json:"invitation_status"`

	Timeline  Timeline `json:"timeline"`
	SalePrice float64  `json:"sale_price,omitempty"`

	// Version is bumped on every write and checked by the store's
	// compare-and-swap update.
	Version int64 `json:"version"`
}

// IsTargeted reports whether the buyer may respond to this listing.
func (l *Listing) IsTargeted(buyerID string) bool {
	return contains(l.TargetedBuyers, buyerID)
}

// IsInterested reports whether the buyer is currently active on this listing.
func (l *Listing) IsInterested(buyerID string) bool {
	return contains(l.InterestedBuyers, buyerID)
}

// WasEverActive reports whether the buyer was ever active on this listing.
func (l *Listing) WasEverActive(buyerID string) bool {
	return contains(l.EverActiveBuyers, buyerID)
}

// AddTargeted adds the buyer to TargetedBuyers. Returns false if the buyer
// was already present.
func (l *Listing) AddTargeted(buyerID string) bool {
	if contains(l.TargetedBuyers, buyerID) {
		return false
	}
	l.TargetedBuyers = append(l.TargetedBuyers, buyerID)
	return true
}

// AddInterested adds the buyer to InterestedBuyers and EverActiveBuyers.
// Both adds are idempotent; EverActiveBuyers never shrinks afterwards.
func (l *Listing) AddInterested(buyerID string) {
	if !contains(l.InterestedBuyers, buyerID) {
		l.InterestedBuyers = append(l.InterestedBuyers, buyerID)
	}
	if !contains(l.EverActiveBuyers, buyerID) {
		l.EverActiveBuyers = append(l.EverActiveBuyers, buyerID)
	}
}

// RemoveInterested removes the buyer from InterestedBuyers only.
func (l *Listing) RemoveInterested(buyerID string) {
	for i, id := range l.InterestedBuyers {
		if id == buyerID {
			l.InterestedBuyers = append(l.InterestedBuyers[:i], l.InterestedBuyers[i+1:]...)
			return
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Preferences are buyer-level delivery preferences from the criteria store.
type Preferences struct {
	StopSendingDeals       bool `json:"stop_sending_deals"`
	DoNotSendMarketedDeals bool `json:"do_not_send_marketed_deals"`
	AllowBuyerLikeDeals    bool `json:"allow_buyer_like_deals"`
}

// BuyerProfile is a buyer's acquisition criteria, owned by the external
// criteria store and read-only to the core. Optional numeric bounds are
// pointers: an absent bound is a wildcard, never zero. The distinction
// matters for the EBITDA minimum, where an explicit zero has its own rule.
type BuyerProfile struct {
	ID          string `json:"id"` // uuid
	DisplayName string `json:"display_name"`
	CompanyName string `json:"company_name,omitempty"`

	TargetCountries []string `json:"target_countries"`
	TargetSectors   []string `json:"target_sectors"`

	RevenueMin         *float64 `json:"revenue_min,omitempty"`
	RevenueMax         *float64 `json:"revenue_max,omitempty"`
	EBITDAMin          *float64 `json:"ebitda_min,omitempty"`
	EBITDAMax          *float64 `json:"ebitda_max,omitempty"`
	TransactionSizeMin *float64 `json:"transaction_size_min,omitempty"`
	TransactionSizeMax *float64 `json:"transaction_size_max,omitempty"`
	MinRevenueGrowth   *float64 `json:"min_revenue_growth,omitempty"`
	MinYearsInBusiness *int     `json:"min_years_in_business,omitempty"`
	MinStakePercent    *float64 `json:"min_stake_percent,omitempty"`

	PreferredModels []BusinessModel `json:"preferred_models,omitempty"`
	CapitalType     string          `json:"capital_type,omitempty"`
	CompanyType     string          `json:"company_type,omitempty"`

	DealsCompletedLast5Years int     `json:"deals_completed_last_5_years"`
	AvgDealSize              float64 `json:"avg_deal_size"`

	Preferences Preferences `json:"preferences"`
}

// PrefersModel reports whether the model is in the buyer's preferred list.
func (p *BuyerProfile) PrefersModel(m BusinessModel) bool {
	for _, pm := range p.PreferredModels {
		if pm == m {
			return true
		}
	}
	return false
}

// ProfileFilter narrows a criteria-store scan.
type ProfileFilter struct {
	Country       string `json:"country,omitempty"`
	Sector        string `json:"sector,omitempty"`
	IncludeOptOut bool   `json:"include_opt_out,omitempty"` // include stop_sending_deals profiles
	Limit         int    `json:"limit,omitempty"`
}

// Interaction is one immutable ledger record. BuyerID is empty for
// listing-level events such as a completion.
type Interaction struct {
	ID         string            `json:"id"` // uuid
	ListingID  string            `json:"listing_id"`
	SellerID   string            `json:"seller_id"`
	BuyerID    string            `json:"buyer_id,omitempty"`
	Type       InteractionType   `json:"interaction_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Notes      string            `json:"notes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ErrorResponse is the error payload returned by the HTTP surface.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TargetRequest is the request body for targeting buyers at a listing.
type TargetRequest struct {
	BuyerIDs []string `json:"buyer_ids"`
}

// TargetResponse reports which buyers were newly targeted.
type TargetResponse struct {
	ListingID string   `json:"listing_id"`
	Targeted  []string `json:"targeted"`
}

// RespondRequest is the request body for a buyer/admin response.
type RespondRequest struct {
	Decision Decision `json:"decision"`
	Notes    string   `json:"notes,omitempty"`
}

// CompleteRequest is the request body for completing a listing.
type CompleteRequest struct {
	SalePrice float64 `json:"sale_price"`
}
