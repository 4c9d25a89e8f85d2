package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/angas/elprice/convert"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/types"
	"github.com/angas/elprice/types/maybe"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (d *Database) IsDuplicate(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := d.read.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM energy_price
			WHERE start_time = ? AND end_time = ?
		)`,
		hours.FormatStorage(start),
		hours.FormatStorage(end)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for duplicate energy price: %w", err)
	}
	return exists, nil
}

// InsertPrices stores all records in a single transaction. Slots that are
// already stored are left untouched, the returned count only includes new rows.
func (d *Database) InsertPrices(ctx context.Context, records []types.PriceRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("start transaction for energy prices: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO energy_price (id, start_time, end_time, price, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(start_time) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare energy price insert: %w", err)
	}
	defer stmt.Close()

	now := hours.FormatStorage(time.Now())
	var inserted int64
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			r.When.StorageString(),
			hours.FormatStorage(r.End()),
			convert.RoundPrice(r.Price).StringFixed(convert.PriceDecimals),
			now)
		if err != nil {
			return 0, fmt.Errorf("insert energy price for %s: %w", r.When, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected for %s: %w", r.When, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit energy prices: %w", err)
	}

	d.logger.Debug("energy prices inserted",
		slog.Int("candidates", len(records)),
		slog.Int64("inserted", inserted))

	return inserted, nil
}

// GetPricesForPeriod returns the stored records with a start in [start, end).
func (d *Database) GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	if !start.Before(end) {
		return []types.PriceRecord{}, nil
	}

	rows, err := d.read.QueryContext(ctx, `
		SELECT id, start_time, price, created_at, updated_at
		FROM energy_price
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		hours.FormatStorage(start),
		hours.FormatStorage(end))
	if err != nil {
		return nil, fmt.Errorf("fetching energy prices: %w", err)
	}
	defer rows.Close()

	records := make([]types.PriceRecord, 0)
	for rows.Next() {
		r, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading energy price rows: %w", err)
	}

	return records, nil
}

// LatestPriceHour is the newest stored slot, false when there are none.
func (d *Database) LatestPriceHour(ctx context.Context) (hours.DateHour, bool, error) {
	var latest sql.NullString
	err := d.read.QueryRowContext(ctx, `SELECT MAX(start_time) FROM energy_price`).Scan(&latest)
	if err != nil {
		return hours.DateHour{}, false, fmt.Errorf("fetching latest energy price hour: %w", err)
	}
	if !latest.Valid {
		return hours.DateHour{}, false, nil
	}
	dh, err := hours.ParseStorage(latest.String)
	if err != nil {
		return hours.DateHour{}, false, err
	}
	return dh, true, nil
}

// UpdatePrice changes the price of a stored slot and stamps updated_at.
// It reports false when the slot isn't stored.
func (d *Database) UpdatePrice(ctx context.Context, when hours.DateHour, price decimal.Decimal) (bool, error) {
	res, err := d.write.ExecContext(ctx, `
		UPDATE energy_price SET price = ?, updated_at = ?
		WHERE start_time = ?`,
		convert.RoundPrice(price).StringFixed(convert.PriceDecimals),
		hours.FormatStorage(time.Now()),
		when.StorageString())
	if err != nil {
		return false, fmt.Errorf("updating energy price for %s: %w", when, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for %s: %w", when, err)
	}
	return n > 0, nil
}

func (d *Database) CountPrices(ctx context.Context) (int64, error) {
	var n int64
	if err := d.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM energy_price`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting energy prices: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrice(row scanner) (types.PriceRecord, error) {
	var (
		id, start, price, created string
		updated                   sql.NullString
	)
	if err := row.Scan(&id, &start, &price, &created, &updated); err != nil {
		return types.PriceRecord{}, fmt.Errorf("scanning energy price row: %w", err)
	}

	var r types.PriceRecord
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return types.PriceRecord{}, fmt.Errorf("parsing energy price id %q: %w", id, err)
	}
	if r.When, err = hours.ParseStorage(start); err != nil {
		return types.PriceRecord{}, err
	}
	if r.Price, err = decimal.NewFromString(price); err != nil {
		return types.PriceRecord{}, fmt.Errorf("parsing energy price %q: %w", price, err)
	}
	if r.CreatedAt, err = time.ParseInLocation(hours.StorageLayout, created, time.UTC); err != nil {
		return types.PriceRecord{}, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	if updated.Valid {
		t, err := time.ParseInLocation(hours.StorageLayout, updated.String, time.UTC)
		if err != nil {
			return types.PriceRecord{}, fmt.Errorf("parsing updated_at %q: %w", updated.String, err)
		}
		r.UpdatedAt = maybe.Some(t)
	}

	return r, nil
}
