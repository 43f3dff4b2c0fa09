// Package model defines the core domain types shared across the tournament
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus is the derived lifecycle state of a tournament.
// It is never persisted; see the lifecycle package.
type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusEnrolling TournamentStatus = "enrolling"
	StatusOngoing   TournamentStatus = "ongoing"
	StatusSettling  TournamentStatus = "settling"
	StatusEnded     TournamentStatus = "ended"
	StatusCancelled TournamentStatus = "cancelled"
)

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradingHours restricts trade execution to a local-time window.
// Start and End use "HH:MM" in the named IANA timezone.
type TradingHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// RiskLimits are per-tournament risk rules enforced on every trade.
type RiskLimits struct {
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`     // fraction of peak, (0,1]; 0 = unlimited
	MaxLeverage    decimal.Decimal `json:"max_leverage"`     // >= 1; 1 = no margin
	MaxDailyTrades int             `json:"max_daily_trades"` // 0 = unlimited
}

// TournamentRules configure what trades are legal inside a tournament.
// Immutable once the tournament has started.
type TournamentRules struct {
	AllowShortSelling  bool            `json:"allow_short_selling"`
	MaxPositionSize    decimal.Decimal `json:"max_position_size"` // fraction of totalAssets, (0,1]
	AllowedInstruments []string        `json:"allowed_instruments,omitempty"`
	TradingHours       *TradingHours   `json:"trading_hours,omitempty"`
	RiskLimits         RiskLimits      `json:"risk_limits"`
}

// Tournament is the static configuration of an investment competition.
// Lifecycle status is always derived from these fields plus the current
// time, never stored.
type Tournament struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`

	StartTime time.Time `json:"start_time" db:"start_time"`
	EndTime   time.Time `json:"end_time" db:"end_time"`

	// EnrollOpen marks the start of the enrollment window. Zero means
	// "default lead before StartTime" (see lifecycle.DefaultEnrollLead).
	EnrollOpen time.Time `json:"enroll_open,omitempty" db:"enroll_open"`

	// SettlementWindow is the grace period after EndTime during which
	// final valuation runs. Zero means lifecycle.DefaultSettlementWindow.
	SettlementWindow time.Duration `json:"settlement_window,omitempty" db:"settlement_window"`

	MaxParticipants     int `json:"max_participants" db:"max_participants"`
	CurrentParticipants int `json:"current_participants" db:"current_participants"`

	// AllowEarlyJoin permits joining while the tournament is still Upcoming.
	AllowEarlyJoin bool `json:"allow_early_join" db:"allow_early_join"`

	EntryCapital decimal.Decimal `json:"entry_capital" db:"entry_capital"` // virtual starting cash
	FeeTokens    decimal.Decimal `json:"fee_tokens" db:"fee_tokens"`       // real-currency entry cost

	ReturnMetric string          `json:"return_metric" db:"return_metric"` // "return_pct" | "twr"
	ResetMode    string          `json:"reset_mode,omitempty" db:"reset_mode"`
	Rules        TournamentRules `json:"rules" db:"rules"`

	Cancelled bool      `json:"cancelled" db:"cancelled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Holding is one symbol position inside a portfolio.
type Holding struct {
	Symbol        string          `json:"symbol"`
	Shares        decimal.Decimal `json:"shares"`        // signed only when short selling is allowed
	AveragePrice  decimal.Decimal `json:"average_price"` // volume-weighted cost basis
	CurrentPrice  decimal.Decimal `json:"current_price"` // last mark
	FirstPurchase time.Time       `json:"first_purchase"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// TotalValue is the mark-to-market value of the holding.
func (h *Holding) TotalValue() decimal.Decimal {
	return h.Shares.Mul(h.CurrentPrice)
}

// UnrealizedGainLoss is TotalValue minus cost basis.
func (h *Holding) UnrealizedGainLoss() decimal.Decimal {
	return h.TotalValue().Sub(h.Shares.Mul(h.AveragePrice))
}

// ValueSnapshot is one point of the append-only daily value history.
type ValueSnapshot struct {
	Date        time.Time       `json:"date"` // UTC midnight of the trading day
	TotalAssets decimal.Decimal `json:"total_assets"`
}

// Portfolio is the virtual account of one participant in one tournament.
// TotalAssets is always derived from cash plus marked holdings, never
// stored as an independent source of truth.
type Portfolio struct {
	ID           string `json:"id" db:"id"`
	TournamentID string `json:"tournament_id" db:"tournament_id"`
	UserID       string `json:"user_id" db:"user_id"`

	CashBalance    decimal.Decimal     `json:"cash_balance" db:"cash_balance"`
	InitialBalance decimal.Decimal     `json:"initial_balance" db:"initial_balance"`
	Holdings       map[string]*Holding `json:"holdings"`

	TotalTrades   int `json:"total_trades" db:"total_trades"`
	ClosingTrades int `json:"closing_trades" db:"closing_trades"` // sells that closed part of a position
	WinningTrades int `json:"winning_trades" db:"winning_trades"`

	// PeakAssets is the highest TotalAssets ever observed, the drawdown
	// reference point for risk checks.
	PeakAssets decimal.Decimal `json:"peak_assets" db:"peak_assets"`

	DailyValueHistory []ValueSnapshot `json:"daily_value_history"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TotalAssets recomputes cash + Σ holding market value.
func (p *Portfolio) TotalAssets() decimal.Decimal {
	total := p.CashBalance
	for _, h := range p.Holdings {
		total = total.Add(h.TotalValue())
	}
	return total
}

// Clone returns a deep copy. Mutating services work on a clone and commit
// it whole, so a failed validation never leaks partial state.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Holdings = make(map[string]*Holding, len(p.Holdings))
	for sym, h := range p.Holdings {
		hc := *h
		cp.Holdings[sym] = &hc
	}
	cp.DailyValueHistory = make([]ValueSnapshot, len(p.DailyValueHistory))
	copy(cp.DailyValueHistory, p.DailyValueHistory)
	return &cp
}

// TradingRecord is an immutable ledger entry for one executed trade.
// Once created, these are never modified or deleted — the audit trail all
// valuation recomputes from.
type TradingRecord struct {
	ID           string `json:"id" db:"id"`
	PortfolioID  string `json:"portfolio_id" db:"portfolio_id"`
	TournamentID string `json:"tournament_id" db:"tournament_id"`
	UserID       string `json:"user_id" db:"user_id"`

	Symbol      string          `json:"symbol" db:"symbol"`
	Side        TradeSide       `json:"side" db:"side"`
	Shares      decimal.Decimal `json:"shares" db:"shares"`
	Price       decimal.Decimal `json:"price" db:"price"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"` // shares × price
	Fee         decimal.Decimal `json:"fee" db:"fee"`
	NetAmount   decimal.Decimal `json:"net_amount" db:"net_amount"` // cash impact: -(total+fee) buy, +(total-fee) sell

	// Set only on sells that close part of a position.
	RealizedGainLoss    *decimal.Decimal `json:"realized_gain_loss,omitempty" db:"realized_gain_loss"`
	RealizedGainLossPct *decimal.Decimal `json:"realized_gain_loss_pct,omitempty" db:"realized_gain_loss_pct"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// RankDelta describes leaderboard movement since the previous computation.
type RankDelta string

const (
	RankImproved  RankDelta = "improved"
	RankDeclined  RankDelta = "declined"
	RankUnchanged RankDelta = "unchanged"
)

// RankingEntry is one row of a tournament leaderboard.
type RankingEntry struct {
	TournamentID string          `json:"tournament_id" db:"tournament_id"`
	UserID       string          `json:"user_id" db:"user_id"`
	PortfolioID  string          `json:"portfolio_id" db:"portfolio_id"`
	CurrentRank  int             `json:"current_rank" db:"current_rank"`
	PreviousRank int             `json:"previous_rank" db:"previous_rank"` // 0 = first appearance
	MetricValue  decimal.Decimal `json:"metric_value" db:"metric_value"`
	AsOf         time.Time       `json:"as_of" db:"as_of"`
}

// Delta classifies the movement between PreviousRank and CurrentRank.
// Lower rank numbers are better.
func (e *RankingEntry) Delta() RankDelta {
	switch {
	case e.PreviousRank == 0 || e.PreviousRank == e.CurrentRank:
		return RankUnchanged
	case e.CurrentRank < e.PreviousRank:
		return RankImproved
	default:
		return RankDeclined
	}
}

// ChartPoint is one point of a presentation chart series.
type ChartPoint struct {
	Date   time.Time        `json:"date"`
	Value  decimal.Decimal  `json:"value"`
	Change *decimal.Decimal `json:"change,omitempty"`
}
