package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch identifies one immutable ingestion run for a channel and stat date.
// IDs encode ingestion wall-clock time (YYYYMMDD_HHMMSS) and sort
// lexicographically in ingestion order within a date.
type Batch struct {
	ID         string
	Channel    string
	EntityDate time.Time
	RowCount   int64
}

// MetricRow is one aggregated campaign record from a single batch.
// Derived ratios are null, not NaN or infinity, when their denominator
// is zero or missing.
type MetricRow struct {
	CampaignID   string
	CampaignName string
	Owner        string
	Channel      string
	Country      string
	Spend        decimal.Decimal
	Revenue      decimal.Decimal
	NewUsers     int64
	Impressions  int64
	Clicks       int64
	ROAS         decimal.NullDecimal
	CPI          decimal.NullDecimal
	CPM          decimal.NullDecimal
	CTR          decimal.NullDecimal
	CVR          decimal.NullDecimal
}

// SummaryRow is one channel's rollup of a batch, used for reports and
// exports.
type SummaryRow struct {
	EntityDate time.Time
	BatchID    string
	Channel    string
	Spend      decimal.Decimal
	Revenue    decimal.Decimal
	NewUsers   int64
	ROAS       decimal.NullDecimal
}

// SignalRecord captures an emitted signal for auditing and the show command.
type SignalRecord struct {
	ID         int64
	CycleID    string
	RuleType   string
	Priority   string
	SubjectID  string
	Owner      string
	Channel    string
	Message    string
	Action     string
	EntityDate time.Time
	BatchID    string
	CreatedAt  time.Time
}
