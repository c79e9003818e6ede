package portfolio

import (
	"github.com/shopspring/decimal"
)

// RebalancePriority orders rebalance actions by urgency
type RebalancePriority string

const (
	PriorityHigh   RebalancePriority = "HIGH"
	PriorityMedium RebalancePriority = "MEDIUM"
)

// RebalanceSide is the direction of a rebalance action
type RebalanceSide string

const (
	RebalanceBuy  RebalanceSide = "buy"
	RebalanceSell RebalanceSide = "sell"
)

// AllocationTarget is the desired share of equity for one asset
type AllocationTarget struct {
	Asset         string
	TargetPercent float64
}

// RebalanceAction is one recommended trade to move an asset toward its
// allocation target
type RebalanceAction struct {
	Asset          string
	Side           RebalanceSide
	AmountUSD      decimal.Decimal
	CurrentPercent float64
	TargetPercent  float64
	Deviation      float64
	Priority       RebalancePriority
}
