package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"deal-matching-api/internal/models"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateListing checks a listing payload before it is stored.
func ValidateListing(l *models.Listing) error {
	if err := ValidateUUID(l.ID, "id"); err != nil {
		return err
	}
	if err := ValidateUUID(l.SellerID, "seller_id"); err != nil {
		return err
	}

	if l.Sector == "" {
		return &ValidationError{Field: "sector", Message: "is required"}
	}
	if l.Geography == "" {
		return &ValidationError{Field: "geography", Message: "is required"}
	}

	switch l.Reward {
	case "", models.RewardSeed, models.RewardBloom, models.RewardFruit:
	default:
		return &ValidationError{Field: "reward_level", Message: "must be seed, bloom or fruit"}
	}

	if l.YearsInBusiness < 0 {
		return &ValidationError{Field: "years_in_business", Message: "must be non-negative"}
	}
	if l.StakePercent < 0 || l.StakePercent > 100 {
		return &ValidationError{Field: "stake_percent", Message: "must be between 0 and 100"}
	}
	if l.TrailingRevenue < 0 {
		return &ValidationError{Field: "trailing_revenue", Message: "must be non-negative"}
	}
	if l.AskingPrice < 0 {
		return &ValidationError{Field: "asking_price", Message: "must be non-negative"}
	}
	if l.MinTransactionSize < 0 {
		return &ValidationError{Field: "min_transaction_size", Message: "must be non-negative"}
	}
	if l.MinPriorAcquisitions < 0 {
		return &ValidationError{Field: "min_prior_acquisitions", Message: "must be non-negative"}
	}

	return nil
}

// ValidateProfile checks a buyer criteria profile before it is stored.
func ValidateProfile(p *models.BuyerProfile) error {
	if err := ValidateUUID(p.ID, "id"); err != nil {
		return err
	}

	if len(p.TargetCountries) == 0 {
		return &ValidationError{Field: "target_countries", Message: "at least one country is required"}
	}
	if len(p.TargetSectors) == 0 {
		return &ValidationError{Field: "target_sectors", Message: "at least one sector is required"}
	}

	if err := validateBounds("revenue", p.RevenueMin, p.RevenueMax); err != nil {
		return err
	}
	if err := validateBounds("ebitda", p.EBITDAMin, p.EBITDAMax); err != nil {
		return err
	}
	if err := validateBounds("transaction_size", p.TransactionSizeMin, p.TransactionSizeMax); err != nil {
		return err
	}

	if p.MinStakePercent != nil && (*p.MinStakePercent < 0 || *p.MinStakePercent > 100) {
		return &ValidationError{Field: "min_stake_percent", Message: "must be between 0 and 100"}
	}
	if p.MinYearsInBusiness != nil && *p.MinYearsInBusiness < 0 {
		return &ValidationError{Field: "min_years_in_business", Message: "must be non-negative"}
	}
	if p.DealsCompletedLast5Years < 0 {
		return &ValidationError{Field: "deals_completed_last_5_years", Message: "must be non-negative"}
	}
	if p.AvgDealSize < 0 {
		return &ValidationError{Field: "avg_deal_size", Message: "must be non-negative"}
	}

	for i, m := range p.PreferredModels {
		switch m {
		case models.ModelRecurringRevenue, models.ModelProjectBased, models.ModelAssetLight, models.ModelAssetHeavy:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("preferred_models[%d]", i),
				Message: "unknown business model",
			}
		}
	}

	return nil
}

func validateBounds(field string, min, max *float64) error {
	if min != nil && *min < 0 {
		return &ValidationError{Field: field + "_min", Message: "must be non-negative"}
	}
	if max != nil && *max < 0 {
		return &ValidationError{Field: field + "_max", Message: "must be non-negative"}
	}
	if min != nil && max != nil && *min > *max {
		return &ValidationError{Field: field + "_min", Message: "must not exceed " + field + "_max"}
	}
	return nil
}

// ValidateDecision checks a caller-facing response decision.
func ValidateDecision(d models.Decision) error {
	switch d {
	case models.DecisionActive, models.DecisionPending, models.DecisionRejected:
		return nil
	default:
		return &ValidationError{Field: "decision", Message: "must be active, pending or rejected"}
	}
}

// ValidateBucket checks a buyer-facing view segment name.
func ValidateBucket(b models.Bucket) error {
	switch b {
	case models.BucketActive, models.BucketPending, models.BucketRejected, models.BucketCompleted:
		return nil
	default:
		return &ValidationError{Field: "bucket", Message: "must be active, pending, rejected or completed"}
	}
}

// ValidateRole checks an actor role header value.
func ValidateRole(r models.ActorRole) error {
	switch r {
	case models.RoleBuyer, models.RoleSeller, models.RoleAdmin:
		return nil
	default:
		return &ValidationError{Field: "actor_role", Message: "must be buyer, seller or admin"}
	}
}

// SanitizeString strips control characters and surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateUUID checks that id is a v4 UUID.
func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{Field: fieldName, Message: "is required"}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{Field: fieldName, Message: "must be a valid UUID v4"}
	}

	return nil
}
