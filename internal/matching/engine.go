// Package matching scores candidate buyers against a listing.
//
// A profile first has to clear the mandatory gate (opt-out, geography,
// sector, marketed-deal preference); only then are the weighted optional
// factors evaluated. Each factor is all-or-nothing, and the percentage is
// the awarded share of the 65-point scale, clamped at 100.
package matching

import (
	"math"
	"sort"
	"strings"

	"deal-matching-api/internal/geo"
	"deal-matching-api/internal/models"
)

// Factor weights. Changing any of these silently reshuffles which buyers
// see which listings, so they are fixed here in one place.
const (
	WeightIndustry        = 10
	WeightGeography       = 10
	WeightRevenueRange    = 8
	WeightEBITDARange     = 8
	WeightRevenueGrowth   = 5
	WeightYearsInBusiness = 5
	WeightPerModelFlag    = 3 // four flags, up to 12
	WeightCapitalType     = 4
	WeightCompanyType     = 4
	WeightMinTransaction  = 5
	WeightPriorDeals      = 5
	WeightStakePercent    = 4

	// MaxScore is the percentage denominator. The weights sum past it, so
	// the percentage clamps at 100 rather than crossing it.
	MaxScore = 65

	// MinRankPercentage is the cut below which a candidate is dropped
	// from Rank output.
	MinRankPercentage = 35
)

// FactorAward names one awarded factor and its weight.
type FactorAward struct {
	Factor string `json:"factor"`
	Weight int    `json:"weight"`
}

// Match is the scoring result for one (listing, profile) pair.
type Match struct {
	BuyerID     string        `json:"buyer_id"`
	DisplayName string        `json:"display_name,omitempty"`
	Eligible    bool          `json:"eligible"`
	Score       int           `json:"score"`
	Percentage  int           `json:"percentage"`
	Breakdown   []FactorAward `json:"breakdown,omitempty"`
}

// Score computes the compatibility of one buyer profile with a listing.
// Profiles failing the mandatory gate come back ineligible with no
// breakdown, regardless of how the optional factors would have scored.
func Score(l *models.Listing, p *models.BuyerProfile) Match {
	m := Match{BuyerID: p.ID, DisplayName: p.DisplayName}

	if !passesGate(l, p) {
		return m
	}
	m.Eligible = true

	award := func(factor string, weight int, ok bool) {
		if ok {
			m.Score += weight
			m.Breakdown = append(m.Breakdown, FactorAward{Factor: factor, Weight: weight})
		}
	}

	// Industry and geography already passed the gate.
	award("industry", WeightIndustry, true)
	award("geography", WeightGeography, true)

	award("revenue_range", WeightRevenueRange, inRange(l.TrailingRevenue, p.RevenueMin, p.RevenueMax))
	award("ebitda_range", WeightEBITDARange, ebitdaInRange(l.TrailingEBITDA, p.EBITDAMin, p.EBITDAMax))
	award("revenue_growth", WeightRevenueGrowth, meetsFloor(l.AvgRevenueGrowth, p.MinRevenueGrowth))
	award("years_in_business", WeightYearsInBusiness, meetsFloor(float64(l.YearsInBusiness), intFloor(p.MinYearsInBusiness)))

	award("model_recurring_revenue", WeightPerModelFlag, l.RecurringRevenue && p.PrefersModel(models.ModelRecurringRevenue))
	award("model_project_based", WeightPerModelFlag, l.ProjectBased && p.PrefersModel(models.ModelProjectBased))
	award("model_asset_light", WeightPerModelFlag, l.AssetLight && p.PrefersModel(models.ModelAssetLight))
	award("model_asset_heavy", WeightPerModelFlag, l.AssetHeavy && p.PrefersModel(models.ModelAssetHeavy))

	award("capital_availability", WeightCapitalType, allowedBy(p.CapitalType, l.AllowedCapitalTypes))
	award("company_type", WeightCompanyType, allowedBy(p.CompanyType, l.AllowedCompanyTypes))

	award("min_transaction_size", WeightMinTransaction,
		p.AvgDealSize > 0 && (l.MinTransactionSize == 0 || p.AvgDealSize >= l.MinTransactionSize))
	award("prior_acquisitions", WeightPriorDeals,
		p.DealsCompletedLast5Years > 0 && (l.MinPriorAcquisitions == 0 || p.DealsCompletedLast5Years >= l.MinPriorAcquisitions))
	award("stake_percent", WeightStakePercent, meetsFloor(l.StakePercent, p.MinStakePercent))

	m.Percentage = int(math.Round(float64(m.Score) / MaxScore * 100))
	if m.Percentage > 100 {
		m.Percentage = 100
	}
	return m
}

// Rank scores every candidate and keeps eligible matches at or above
// MinRankPercentage, ordered by percentage descending with buyer id
// ascending as the deterministic tie-break.
func Rank(l *models.Listing, profiles []models.BuyerProfile) []Match {
	i := 0
	return RankFrom(l, func() (*models.BuyerProfile, bool) {
		if i >= len(profiles) {
			return nil, false
		}
		p := &profiles[i]
		i++
		return p, true
	})
}

// RankFrom is the streaming form of Rank: it draws profiles from next until
// next reports exhaustion, so a large candidate scan never has to be
// materialized ahead of the filter.
func RankFrom(l *models.Listing, next func() (*models.BuyerProfile, bool)) []Match {
	var matches []Match
	for {
		p, ok := next()
		if !ok {
			break
		}
		m := Score(l, p)
		if m.Eligible && m.Percentage >= MinRankPercentage {
			matches = append(matches, m)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Percentage != matches[j].Percentage {
			return matches[i].Percentage > matches[j].Percentage
		}
		return matches[i].BuyerID < matches[j].BuyerID
	})
	return matches
}

// passesGate evaluates the mandatory clauses. A profile failing any clause
// is never scored.
func passesGate(l *models.Listing, p *models.BuyerProfile) bool {
	if p.Preferences.StopSendingDeals {
		return false
	}
	if !geo.Intersects(l.Geography, p.TargetCountries) {
		return false
	}
	if !containsFold(p.TargetSectors, l.Sector) {
		return false
	}
	if l.Reward == models.RewardSeed && p.Preferences.DoNotSendMarketedDeals {
		return false
	}
	return true
}

// inRange checks value against optional bounds. An absent bound is a
// wildcard on that side; with both bounds absent the factor still awards.
func inRange(value float64, min, max *float64) bool {
	if min != nil && value < *min {
		return false
	}
	if max != nil && value > *max {
		return false
	}
	return true
}

// ebitdaInRange applies the zero-rule: a buyer minimum of exactly zero
// demands strictly positive EBITDA, an absent minimum is a wildcard.
func ebitdaInRange(value float64, min, max *float64) bool {
	if min != nil {
		if *min == 0 {
			if value <= 0 {
				return false
			}
		} else if value < *min {
			return false
		}
	}
	if max != nil && value > *max {
		return false
	}
	return true
}

// meetsFloor awards a listing-side measurement against an optional buyer
// minimum. With no minimum set the listing still has to report the figure;
// a listing that carries no data earns no credit for it.
func meetsFloor(value float64, min *float64) bool {
	if min == nil {
		return value > 0
	}
	return value >= *min
}

func intFloor(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// allowedBy awards a buyer attribute against an optional listing allow-list.
// An empty allow-list imposes no restriction, but the buyer has to state
// the attribute to earn the factor.
func allowedBy(attr string, allowed []string) bool {
	if attr == "" {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	return containsFold(allowed, attr)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
