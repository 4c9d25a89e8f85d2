package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/types"
	"github.com/angas/elprice/types/maybe"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Timestamps are stored without a zone and always hold UTC wall clock.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS energy_price (
		id         UUID PRIMARY KEY,
		start_time TIMESTAMP NOT NULL,
		end_time   TIMESTAMP NOT NULL,
		price      NUMERIC(18, 2) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_energy_price_start_time ON energy_price (start_time);
	CREATE INDEX IF NOT EXISTS ix_energy_price_end_time ON energy_price (end_time);
	CREATE INDEX IF NOT EXISTS ix_energy_price_start_end_time ON energy_price (start_time, end_time);
`

// Database keeps price records in PostgreSQL. It is an alternative to the
// SQLite price table, logs and backups always stay in SQLite.
type Database struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	d := New(p)
	if err := d.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}

// New wraps an existing pool, the schema is not touched.
func New(pool *pgxpool.Pool) *Database {
	return &Database{
		logger: slog.Default().With(slog.String("module", "postgres")),
		pool:   pool,
	}
}

func (d *Database) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

func (d *Database) Close() {
	d.pool.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (d *Database) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create energy price schema: %w", err)
	}
	return nil
}

func (d *Database) IsDuplicate(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM energy_price WHERE start_time = $1 AND end_time = $2
		)`, start.UTC(), end.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for duplicate energy price: %w", err)
	}
	return exists, nil
}

// InsertPrices sends all records as one batch inside a transaction. Slots
// that already exist are skipped and not counted.
func (d *Database) InsertPrices(ctx context.Context, records []types.PriceRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin energy price tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	b := &pgx.Batch{}
	for _, r := range records {
		b.Queue(`
			INSERT INTO energy_price (id, start_time, end_time, price, created_at)
			VALUES ($1::uuid, $2, $3, $4::numeric, $5)
			ON CONFLICT (start_time) DO NOTHING`,
			uuid.NewString(), r.Start().UTC(), r.End().UTC(), r.Price.StringFixed(2), now)
	}

	br := tx.SendBatch(ctx, b)
	var inserted int64
	for _, r := range records {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert energy price for %s: %w", r.When, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close energy price batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit energy prices: %w", err)
	}
	return inserted, nil
}

func (d *Database) GetPricesForPeriod(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	if !start.Before(end) {
		return []types.PriceRecord{}, nil
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id::text, start_time, price::text, created_at, updated_at
		FROM energy_price
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time`, start.UTC(), end.UTC())
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

func (d *Database) LatestPriceHour(ctx context.Context) (hours.DateHour, bool, error) {
	var latest *time.Time
	if err := d.pool.QueryRow(ctx, `SELECT MAX(start_time) FROM energy_price`).Scan(&latest); err != nil {
		return hours.DateHour{}, false, fmt.Errorf("fetching latest energy price hour: %w", err)
	}
	if latest == nil {
		return hours.DateHour{}, false, nil
	}
	return hours.FromTime(*latest), true, nil
}

func (d *Database) UpdatePrice(ctx context.Context, when hours.DateHour, price decimal.Decimal) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		UPDATE energy_price SET price = $1::numeric, updated_at = $2
		WHERE start_time = $3`,
		price.StringFixed(2), time.Now().UTC(), when.Time().UTC())
	if err != nil {
		return false, fmt.Errorf("updating energy price for %s: %w", when, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (d *Database) CountPrices(ctx context.Context) (int64, error) {
	var n int64
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM energy_price`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting energy prices: %w", err)
	}
	return n, nil
}

func scanPrice(row pgx.Row) (types.PriceRecord, error) {
	var (
		id, price      string
		start, created time.Time
		updated        *time.Time
	)
	if err := row.Scan(&id, &start, &price, &created, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PriceRecord{}, err
		}
		return types.PriceRecord{}, fmt.Errorf("scanning energy price row: %w", err)
	}

	uid, err := uuid.Parse(id)
	if err != nil {
		return types.PriceRecord{}, fmt.Errorf("parsing energy price id %q: %w", id, err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return types.PriceRecord{}, fmt.Errorf("parsing energy price %q: %w", price, err)
	}

	r := types.PriceRecord{
		ID:        uid,
		When:      hours.FromTime(start),
		Price:     p,
		CreatedAt: created.UTC(),
	}
	if updated != nil {
		r.UpdatedAt = maybe.Some(updated.UTC())
	}
	return r, nil
}
