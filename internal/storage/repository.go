package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const defaultMetricsTable = "campaign_metrics"

const (
	listBatchesSQL = `SELECT
        batch_id,
        COUNT(*) AS row_count
    FROM %s
    WHERE stat_date = $1
      AND channel = $2
    GROUP BY batch_id
    ORDER BY batch_id;`

	// The batch_id filter must always accompany the stat_date filter so
	// rows from two ingestion runs are never mixed.
	campaignRowsSQL = `SELECT
        campaign_id,
        MAX(campaign_name) AS campaign_name,
        channel,
        country,
        SUM(spend) AS spend,
        SUM(new_user_revenue) AS revenue,
        SUM(new_users) AS new_users,
        SUM(impressions) AS impressions,
        SUM(clicks) AS clicks
    FROM %s
    WHERE stat_date = $1
      AND batch_id = $2
      AND channel = $3
      AND status = 'Active'
    GROUP BY campaign_id, channel, country
    HAVING SUM(spend) > 0
    ORDER BY SUM(spend) DESC;`

	summaryRowSQL = `SELECT
        SUM(spend) AS spend,
        SUM(new_user_revenue) AS revenue,
        SUM(new_users) AS new_users
    FROM %s
    WHERE stat_date = $1
      AND batch_id = $2
      AND channel = $3;`

	campaignClicksSQL = `SELECT
        SUM(clicks) AS clicks,
        SUM(impressions) AS impressions
    FROM %s
    WHERE stat_date = $1
      AND batch_id = $2
      AND campaign_id = $3;`

	insertSignalSQL = `INSERT INTO signals (
        cycle_id,
        rule_type,
        priority,
        subject_id,
        owner,
        channel,
        message,
        action,
        entity_date,
        batch_id
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING id, created_at;`

	listRecentSignalsSQL = `SELECT
        id,
        cycle_id,
        rule_type,
        priority,
        subject_id,
        owner,
        channel,
        message,
        action,
        entity_date,
        batch_id,
        created_at
    FROM signals
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteSignalsBeforeSQL = `DELETE FROM signals WHERE created_at < $1;`
)

// BatchStore lists ingestion batches for a channel and stat date.
type BatchStore interface {
	ListBatches(ctx context.Context, channel string, entityDate time.Time) ([]Batch, error)
}

// MetricStore reads aggregated metric rows from a single resolved batch.
type MetricStore interface {
	CampaignRows(ctx context.Context, entityDate time.Time, batchID, channel string) ([]MetricRow, error)
	SummaryRow(ctx context.Context, entityDate time.Time, batchID, channel string) (SummaryRow, error)
	CampaignClicks(ctx context.Context, entityDate time.Time, batchID, campaignID string) (clicks, impressions int64, err error)
}

// SignalStore defines operations for the emitted-signal audit trail.
type SignalStore interface {
	InsertSignal(ctx context.Context, rec SignalRecord) (SignalRecord, error)
	ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error)
	DeleteSignalsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates warehouse access behind the query guard.
type Store struct {
	pool  *pgxpool.Pool
	guard *QueryGuard

	listBatchesQuery    string
	campaignRowsQuery   string
	summaryRowQuery     string
	campaignClicksQuery string
}

// NewStore wires a pgx pool into a Store. An empty metricsTable falls back
// to the default table name.
func NewStore(pool *pgxpool.Pool, guard *QueryGuard, metricsTable string) *Store {
	if metricsTable == "" {
		metricsTable = defaultMetricsTable
	}
	return &Store{
		pool:                pool,
		guard:               guard,
		listBatchesQuery:    fmt.Sprintf(listBatchesSQL, metricsTable),
		campaignRowsQuery:   fmt.Sprintf(campaignRowsSQL, metricsTable),
		summaryRowQuery:     fmt.Sprintf(summaryRowSQL, metricsTable),
		campaignClicksQuery: fmt.Sprintf(campaignClicksSQL, metricsTable),
	}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListBatches returns all batch ids for a channel and stat date with their
// row counts, ascending by batch id.
func (s *Store) ListBatches(ctx context.Context, channel string, entityDate time.Time) ([]Batch, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	batches := make([]Batch, 0)
	queryErr := s.guard.Do(ctx, func(ctx context.Context) error {
		rows, err := pool.Query(ctx, s.listBatchesQuery, dateArg(entityDate), channel)
		if err != nil {
			return fmt.Errorf("list batches: %w", err)
		}
		defer rows.Close()

		batches = batches[:0]
		for rows.Next() {
			batch := Batch{Channel: channel, EntityDate: entityDate}
			if err := rows.Scan(&batch.ID, &batch.RowCount); err != nil {
				return err
			}
			batches = append(batches, batch)
		}
		return rows.Err()
	})
	if queryErr != nil {
		return nil, queryErr
	}
	return batches, nil
}

// CampaignRows returns one aggregated row per active campaign from exactly
// one batch. Derived ratios are left unset; the metrics layer computes them.
func (s *Store) CampaignRows(ctx context.Context, entityDate time.Time, batchID, channel string) ([]MetricRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	result := make([]MetricRow, 0)
	queryErr := s.guard.Do(ctx, func(ctx context.Context) error {
		rows, err := pool.Query(ctx, s.campaignRowsQuery, dateArg(entityDate), batchID, channel)
		if err != nil {
			return fmt.Errorf("campaign rows: %w", err)
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			row, scanErr := scanMetricRow(rows)
			if scanErr != nil {
				return scanErr
			}
			result = append(result, row)
		}
		return rows.Err()
	})
	if queryErr != nil {
		return nil, queryErr
	}
	return result, nil
}

// SummaryRow returns one channel's spend/revenue rollup from one batch.
func (s *Store) SummaryRow(ctx context.Context, entityDate time.Time, batchID, channel string) (SummaryRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return SummaryRow{}, err
	}

	summary := SummaryRow{EntityDate: entityDate, BatchID: batchID, Channel: channel}
	queryErr := s.guard.Do(ctx, func(ctx context.Context) error {
		var spendStr, revenueStr sql.NullString
		var newUsers sql.NullInt64
		if err := pool.QueryRow(ctx, s.summaryRowQuery, dateArg(entityDate), batchID, channel).
			Scan(&spendStr, &revenueStr, &newUsers); err != nil {
			return fmt.Errorf("summary row: %w", err)
		}

		var parseErr error
		summary.Spend, parseErr = parseNumeric(spendStr)
		if parseErr != nil {
			return fmt.Errorf("parse spend: %w", parseErr)
		}
		summary.Revenue, parseErr = parseNumeric(revenueStr)
		if parseErr != nil {
			return fmt.Errorf("parse revenue: %w", parseErr)
		}
		summary.NewUsers = newUsers.Int64
		return nil
	})
	if queryErr != nil {
		return SummaryRow{}, queryErr
	}
	return summary, nil
}

// CampaignClicks returns click and impression sums for one campaign in one
// batch, used by the creative-refresh historical lookup.
func (s *Store) CampaignClicks(ctx context.Context, entityDate time.Time, batchID, campaignID string) (int64, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, 0, err
	}

	var clicks, impressions sql.NullInt64
	queryErr := s.guard.Do(ctx, func(ctx context.Context) error {
		if err := pool.QueryRow(ctx, s.campaignClicksQuery, dateArg(entityDate), batchID, campaignID).
			Scan(&clicks, &impressions); err != nil {
			return fmt.Errorf("campaign clicks: %w", err)
		}
		return nil
	})
	if queryErr != nil {
		return 0, 0, queryErr
	}
	return clicks.Int64, impressions.Int64, nil
}

// InsertSignal persists an emitted signal.
func (s *Store) InsertSignal(ctx context.Context, rec SignalRecord) (SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SignalRecord{}, err
	}

	row := pool.QueryRow(ctx, insertSignalSQL,
		rec.CycleID,
		rec.RuleType,
		rec.Priority,
		rec.SubjectID,
		rec.Owner,
		rec.Channel,
		rec.Message,
		rec.Action,
		dateArg(rec.EntityDate),
		rec.BatchID,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return SignalRecord{}, fmt.Errorf("insert signal: %w", scanErr)
	}
	return rec, nil
}

// ListRecentSignals lists the most recently emitted signals.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	records := make([]SignalRecord, 0, limit)
	for rows.Next() {
		var rec SignalRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleID,
			&rec.RuleType,
			&rec.Priority,
			&rec.SubjectID,
			&rec.Owner,
			&rec.Channel,
			&rec.Message,
			&rec.Action,
			&rec.EntityDate,
			&rec.BatchID,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteSignalsBefore deletes historical signal records.
func (s *Store) DeleteSignalsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSignalsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete signals before: %w", execErr)
	}
	return nil
}

func scanMetricRow(rows pgx.Rows) (MetricRow, error) {
	var (
		campaignID   string
		campaignName sql.NullString
		channel      string
		country      sql.NullString
		spendStr     sql.NullString
		revenueStr   sql.NullString
		newUsers     sql.NullInt64
		impressions  sql.NullInt64
		clicks       sql.NullInt64
	)

	if err := rows.Scan(
		&campaignID,
		&campaignName,
		&channel,
		&country,
		&spendStr,
		&revenueStr,
		&newUsers,
		&impressions,
		&clicks,
	); err != nil {
		return MetricRow{}, err
	}

	spend, err := parseNumeric(spendStr)
	if err != nil {
		return MetricRow{}, fmt.Errorf("parse spend: %w", err)
	}
	revenue, err := parseNumeric(revenueStr)
	if err != nil {
		return MetricRow{}, fmt.Errorf("parse revenue: %w", err)
	}

	return MetricRow{
		CampaignID:   campaignID,
		CampaignName: campaignName.String,
		Channel:      channel,
		Country:      country.String,
		Spend:        spend,
		Revenue:      revenue,
		NewUsers:     newUsers.Int64,
		Impressions:  impressions.Int64,
		Clicks:       clicks.Int64,
	}, nil
}

// parseNumeric converts a scanned numeric that may be SQL NULL. NULL parses
// as zero; that is a missing aggregate, not a computation result.
func parseNumeric(v sql.NullString) (decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.String)
}

// dateArg normalises an entity date for the DATE-typed stat_date column.
func dateArg(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ BatchStore = (*Store)(nil)
var _ MetricStore = (*Store)(nil)
var _ SignalStore = (*Store)(nil)
