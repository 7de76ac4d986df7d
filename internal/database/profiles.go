package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/geo"
	"deal-matching-api/internal/models"
)

// The buyer_profiles table is this repository's implementation of the
// external criteria store. The full profile is stored as one JSON document;
// the columns next to it exist only to narrow scans.

// UpsertProfile creates or replaces a buyer profile.
func (db *DB) UpsertProfile(ctx context.Context, p *models.BuyerProfile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}

	query := `INSERT INTO buyer_profiles (
		id, display_name, target_countries, target_sectors, stop_sending_deals, profile, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = excluded.display_name,
		target_countries = excluded.target_countries,
		target_sectors = excluded.target_sectors,
		stop_sending_deals = excluded.stop_sending_deals,
		profile = excluded.profile,
		updated_at = excluded.updated_at`

	_, err = db.conn.ExecContext(ctx, query,
		p.ID,
		p.DisplayName,
		serializeStrings(p.TargetCountries),
		serializeStrings(p.TargetSectors),
		p.Preferences.StopSendingDeals,
		string(doc),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetProfile loads one buyer profile by id.
func (db *DB) GetProfile(ctx context.Context, id string) (*models.BuyerProfile, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT profile FROM buyer_profiles WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("buyer profile", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var p models.BuyerProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", id, err)
	}
	return &p, nil
}

// ListProfiles scans buyer profiles matching the filter. Country matching
// honors the region/continent hierarchy, so it runs after decoding rather
// than in SQL.
func (db *DB) ListProfiles(ctx context.Context, filter models.ProfileFilter) ([]models.BuyerProfile, error) {
	query := `SELECT profile FROM buyer_profiles`
	var args []interface{}
	if !filter.IncludeOptOut {
		query += ` WHERE stop_sending_deals = 0`
	}
	query += ` ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.BuyerProfile
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		var p models.BuyerProfile
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}

		if filter.Country != "" && !geo.Intersects(filter.Country, p.TargetCountries) {
			continue
		}
		if filter.Sector != "" && !containsFold(p.TargetSectors, filter.Sector) {
			continue
		}

		profiles = append(profiles, p)
		if filter.Limit > 0 && len(profiles) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
