package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"deal-matching-api/internal/models"
)

// AppendInteractions appends ledger records outside of a listing update,
// e.g. plain view events that do not mutate invitation state.
func (db *DB) AppendInteractions(ctx context.Context, records []models.Interaction) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendInteractionsTx(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func appendInteractionsTx(ctx context.Context, tx *sql.Tx, records []models.Interaction) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO interactions (
		id, listing_id, seller_id, buyer_id, interaction_type, occurred_at, notes, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.ListingID,
			rec.SellerID,
			rec.BuyerID,
			string(rec.Type),
			rec.OccurredAt.UTC().Format(time.RFC3339),
			rec.Notes,
			serializeMetadata(rec.Metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to insert interaction %s: %w", rec.ID, err)
		}
	}
	return nil
}

// RecentInteractionsBySeller returns the newest records across all of a
// seller's listings, newest first.
func (db *DB) RecentInteractionsBySeller(ctx context.Context, sellerID string, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions WHERE seller_id = ?
		ORDER BY occurred_at DESC, id DESC LIMIT ?`, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return collectInteractions(rows)
}

// InteractionsBySeller returns every record across a seller's listings,
// oldest first. Dashboard aggregation wants the full series, not a page.
func (db *DB) InteractionsBySeller(ctx context.Context, sellerID string) ([]models.Interaction, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions WHERE seller_id = ?
		ORDER BY occurred_at ASC, id ASC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return collectInteractions(rows)
}

// InteractionsByListing returns every record for one listing, oldest first.
func (db *DB) InteractionsByListing(ctx context.Context, listingID string) ([]models.Interaction, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions WHERE listing_id = ?
		ORDER BY occurred_at ASC, id ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()
	return collectInteractions(rows)
}

// LatestInteraction returns the newest record for a (listing, buyer) pair,
// or nil when the buyer never touched the listing.
func (db *DB) LatestInteraction(ctx context.Context, listingID, buyerID string) (*models.Interaction, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions WHERE listing_id = ? AND buyer_id = ?
		ORDER BY occurred_at DESC, id DESC LIMIT 1`, listingID, buyerID)

	rec, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction: %w", err)
	}
	return rec, nil
}

const interactionColumns = `id, listing_id, seller_id, buyer_id, interaction_type, occurred_at, notes, metadata`

func scanInteraction(row rowScanner) (*models.Interaction, error) {
	var rec models.Interaction
	var occurredAt, metadataJSON string

	err := row.Scan(
		&rec.ID,
		&rec.ListingID,
		&rec.SellerID,
		&rec.BuyerID,
		&rec.Type,
		&occurredAt,
		&rec.Notes,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	if rec.OccurredAt, err = time.Parse(time.RFC3339, occurredAt); err != nil {
		return nil, fmt.Errorf("failed to parse occurred_at: %w", err)
	}
	rec.Metadata = deserializeMetadata(metadataJSON)
	return &rec, nil
}

func collectInteractions(rows *sql.Rows) ([]models.Interaction, error) {
	var records []models.Interaction
	for rows.Next() {
		rec, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}
	return records, nil
}

func serializeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func deserializeMetadata(serialized string) map[string]string {
	if serialized == "" || serialized == "{}" {
		return nil
	}
	var result map[string]string
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return nil
	}
	return result
}
