package domain

import "time"

// DefaultFeeRate is the service fee charged on closed notional (0.5%).
const DefaultFeeRate = 0.005

// FeeStatus tracks whether a service fee was actually collected.
type FeeStatus string

const (
	FeeStatusCollected FeeStatus = "collected"
	FeeStatusPending   FeeStatus = "pending"
	FeeStatusFailed    FeeStatus = "failed"
)

// FeeRecord is one service-fee charge taken when a position closes.
type FeeRecord struct {
	ID             string
	PositionID     string
	TelegramID     int64
	OriginalAmount float64 // notional the fee was computed from
	FeeAmount      float64
	FeeRate        float64
	Reference      string // tx signature or order id of the collection, if any
	Status         FeeStatus
	CollectedAt    *time.Time
	CreatedAt      time.Time
}

// FeeStats aggregates collected fees.
type FeeStats struct {
	TotalCollected    float64
	TotalTransactions int
	UniqueUsers       int
	AverageFee        float64
	SuccessRate       float64 // percent of records with status collected
}
