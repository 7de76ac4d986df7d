package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"deal-matching-api/internal/errs"
	"deal-matching-api/internal/models"
)

// casAttempts bounds the optimistic-concurrency retry loop. Contention on a
// single listing is seller-vs-buyer scale, not hot-key scale, so a handful
// of retries is plenty.
const casAttempts = 5

// DB wraps the database connection and provides access to listings, the
// interaction ledger and buyer profiles.
type DB struct {
	conn *sql.DB
}

// NewDB opens the database and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			seller_id TEXT NOT NULL,
			status TEXT NOT NULL,
			reward_level TEXT NOT NULL,
			is_public INTEGER NOT NULL,
			sector TEXT NOT NULL,
			geography TEXT NOT NULL,
			years_in_business INTEGER NOT NULL,
			stake_percent REAL NOT NULL,
			recurring_revenue INTEGER NOT NULL,
			project_based INTEGER NOT NULL,
			asset_light INTEGER NOT NULL,
			asset_heavy INTEGER NOT NULL,
			trailing_revenue REAL NOT NULL,
			trailing_ebitda REAL NOT NULL,
			avg_revenue_growth REAL NOT NULL,
			asking_price REAL NOT NULL,
			allowed_capital_types TEXT NOT NULL,
			min_transaction_size REAL NOT NULL,
			min_prior_acquisitions INTEGER NOT NULL,
			allowed_company_types TEXT NOT NULL,
			targeted_buyers TEXT NOT NULL,
			interested_buyers TEXT NOT NULL,
			ever_active_buyers TEXT NOT NULL,
			invitation_status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			published_at TEXT,
			completed_at TEXT,
			sale_price REAL NOT NULL DEFAULT 0,
			version INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			listing_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			buyer_id TEXT NOT NULL DEFAULT '',
			interaction_type TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_listing ON interactions(listing_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_seller ON interactions(seller_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_buyer ON interactions(listing_id, buyer_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS buyer_profiles (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			target_countries TEXT NOT NULL,
			target_sectors TEXT NOT NULL,
			stop_sending_deals INTEGER NOT NULL,
			profile TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

const listingColumns = `id, seller_id, status, reward_level, is_public, sector, geography,
	years_in_business, stake_percent, recurring_revenue, project_based, asset_light, asset_heavy,
	trailing_revenue, trailing_ebitda, avg_revenue_growth, asking_price,
	allowed_capital_types, min_transaction_size, min_prior_acquisitions, allowed_company_types,
	targeted_buyers, interested_buyers, ever_active_buyers, invitation_status,
	created_at, updated_at, published_at, completed_at, sale_price, version`

// InsertListing stores a new listing at version 1.
func (db *DB) InsertListing(ctx context.Context, l *models.Listing) error {
	l.Version = 1

	query := `INSERT INTO listings (` + listingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query, listingArgs(l)...)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// GetListing loads one listing by id.
func (db *DB) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("listing", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	return l, nil
}

// ListingsBySeller loads all listings owned by a seller, newest first.
func (db *DB) ListingsBySeller(ctx context.Context, sellerID string) ([]*models.Listing, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE seller_id = ? ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// ListingsTargeting loads every listing whose targeted set contains the
// buyer. The membership sets are JSON columns, so this narrows with LIKE
// and re-checks membership after decoding.
func (db *DB) ListingsTargeting(ctx context.Context, buyerID string) ([]*models.Listing, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE targeted_buyers LIKE '%' || ? || '%'`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	candidates, err := collectListings(rows)
	if err != nil {
		return nil, err
	}
	var listings []*models.Listing
	for _, l := range candidates {
		if l.IsTargeted(buyerID) {
			listings = append(listings, l)
		}
	}
	return listings, nil
}

// Mutation applies an in-memory change to a listing and returns the ledger
// records to append with it. Returning an error aborts the update. An alias
// so callers can pass plain function literals through their own interfaces.
type Mutation = func(l *models.Listing) ([]models.Interaction, error)

// UpdateListingCAS performs an optimistic read-modify-write on one listing.
// The row update is guarded by the version column and committed in the same
// transaction as the ledger append, so a transition can never leave the
// invitation map and the ledger disagreeing. Lost races are retried a
// bounded number of times before ErrVersionConflict.
func (db *DB) UpdateListingCAS(ctx context.Context, id string, mutate Mutation) (*models.Listing, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		l, err := db.GetListing(ctx, id)
		if err != nil {
			return nil, err
		}
		prevVersion := l.Version

		records, err := mutate(l)
		if err != nil {
			return nil, err
		}
		l.Version = prevVersion + 1

		swapped, err := db.swapListing(ctx, l, prevVersion, records)
		if err != nil {
			return nil, err
		}
		if swapped {
			return l, nil
		}
	}
	return nil, fmt.Errorf("listing %s: %w", id, errs.ErrVersionConflict)
}

func (db *DB) swapListing(ctx context.Context, l *models.Listing, prevVersion int64, records []models.Interaction) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE listings SET
		seller_id = ?, status = ?, reward_level = ?, is_public = ?, sector = ?, geography = ?,
		years_in_business = ?, stake_percent = ?, recurring_revenue = ?, project_based = ?,
		asset_light = ?, asset_heavy = ?, trailing_revenue = ?, trailing_ebitda = ?,
		avg_revenue_growth = ?, asking_price = ?, allowed_capital_types = ?,
		min_transaction_size = ?, min_prior_acquisitions = ?, allowed_company_types = ?,
		targeted_buyers = ?, interested_buyers = ?, ever_active_buyers = ?, invitation_status = ?,
		created_at = ?, updated_at = ?, published_at = ?, completed_at = ?, sale_price = ?, version = ?
		WHERE id = ? AND version = ?`

	args := listingArgs(l)[1:] // all columns except the leading id
	args = append(args, l.ID, prevVersion)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update listing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Lost the version race; the caller re-reads and retries.
		return false, nil
	}

	if err := appendInteractionsTx(ctx, tx, records); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func listingArgs(l *models.Listing) []interface{} {
	return []interface{}{
		l.ID,
		l.SellerID,
		string(l.Status),
		string(l.Reward),
		l.IsPublic,
		l.Sector,
		l.Geography,
		l.YearsInBusiness,
		l.StakePercent,
		l.RecurringRevenue,
		l.ProjectBased,
		l.AssetLight,
		l.AssetHeavy,
		l.TrailingRevenue,
		l.TrailingEBITDA,
		l.AvgRevenueGrowth,
		l.AskingPrice,
		serializeStrings(l.AllowedCapitalTypes),
		l.MinTransactionSize,
		l.MinPriorAcquisitions,
		serializeStrings(l.AllowedCompanyTypes),
		serializeStrings(l.TargetedBuyers),
		serializeStrings(l.InterestedBuyers),
		serializeStrings(l.EverActiveBuyers),
		serializeStatusMap(l.InvitationStatus),
		l.Timeline.CreatedAt.UTC().Format(time.RFC3339),
		l.Timeline.UpdatedAt.UTC().Format(time.RFC3339),
		formatTimePtr(l.Timeline.PublishedAt),
		formatTimePtr(l.Timeline.CompletedAt),
		l.SalePrice,
		l.Version,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var capitalJSON, companyJSON, targetedJSON, interestedJSON, everActiveJSON, statusJSON string
	var createdAt, updatedAt string
	var publishedAt, completedAt sql.NullString

	err := row.Scan(
		&l.ID,
		&l.SellerID,
		&l.Status,
		&l.Reward,
		&l.IsPublic,
		&l.Sector,
		&l.Geography,
		&l.YearsInBusiness,
		&l.StakePercent,
		&l.RecurringRevenue,
		&l.ProjectBased,
		&l.AssetLight,
		&l.AssetHeavy,
		&l.TrailingRevenue,
		&l.TrailingEBITDA,
		&l.AvgRevenueGrowth,
		&l.AskingPrice,
		&capitalJSON,
		&l.MinTransactionSize,
		&l.MinPriorAcquisitions,
		&companyJSON,
		&targetedJSON,
		&interestedJSON,
		&everActiveJSON,
		&statusJSON,
		&createdAt,
		&updatedAt,
		&publishedAt,
		&completedAt,
		&l.SalePrice,
		&l.Version,
	)
	if err != nil {
		return nil, err
	}

	l.AllowedCapitalTypes = deserializeStrings(capitalJSON)
	l.AllowedCompanyTypes = deserializeStrings(companyJSON)
	l.TargetedBuyers = deserializeStrings(targetedJSON)
	l.InterestedBuyers = deserializeStrings(interestedJSON)
	l.EverActiveBuyers = deserializeStrings(everActiveJSON)
	l.InvitationStatus = deserializeStatusMap(statusJSON)

	if l.Timeline.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if l.Timeline.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if l.Timeline.PublishedAt, err = parseTimePtr(publishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse published_at: %w", err)
	}
	if l.Timeline.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("failed to parse completed_at: %w", err)
	}

	return &l, nil
}

func collectListings(rows *sql.Rows) ([]*models.Listing, error) {
	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}
	return listings, nil
}

func serializeStrings(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func deserializeStrings(serialized string) []string {
	if serialized == "" || serialized == "[]" {
		return nil
	}
	var result []string
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return nil
	}
	return result
}

func serializeStatusMap(m map[string]models.InvitationRecord) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func deserializeStatusMap(serialized string) map[string]models.InvitationRecord {
	result := make(map[string]models.InvitationRecord)
	if serialized == "" || serialized == "{}" {
		return result
	}
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return make(map[string]models.InvitationRecord)
	}
	return result
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
