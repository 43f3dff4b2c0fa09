// Package ledger owns one virtual portfolio per (tournament, participant):
// enrollment, trade execution under the tournament's risk rules, and
// mark-to-market refreshes.
//
// All mutating operations on a single portfolio are serialized by a keyed
// mutex. Validation and commit are atomic: every check runs against a clone
// of the portfolio, and the store sees either the fully updated state plus
// the audit record, or nothing.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/lifecycle"
	"github.com/arenax/tournament-engine/internal/model"
	"github.com/arenax/tournament-engine/internal/pricefeed"
	"github.com/arenax/tournament-engine/internal/store"
	"github.com/arenax/tournament-engine/internal/valuation"
	"github.com/arenax/tournament-engine/internal/wallet"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Ledger executes enrollment and trades against participant portfolios.
// All collaborators are injected; there is no ambient global state.
type Ledger struct {
	store  store.Store
	feed   pricefeed.Feed
	wallet wallet.Wallet
	clock  clock.Clock
	fees   FeeSchedule
	locks  *keyedMutex
}

// New creates a ledger. A nil fee schedule means no trading fees.
func New(st store.Store, feed pricefeed.Feed, w wallet.Wallet, clk clock.Clock, fees FeeSchedule) *Ledger {
	if fees == nil {
		fees = NoFee{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ledger{
		store:  st,
		feed:   feed,
		wallet: w,
		clock:  clk,
		fees:   fees,
		locks:  newKeyedMutex(),
	}
}

// Join enrolls a participant: debits the entry fee, creates a portfolio
// funded with the tournament's entry capital, and bumps the participant
// counter.
func (l *Ledger) Join(ctx context.Context, tournamentID, userID string) (*model.Portfolio, error) {
	unlock := l.locks.Lock("tournament:" + tournamentID)
	defer unlock()

	t, err := l.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()

	switch status := lifecycle.Status(t, now); status {
	case model.StatusEnrolling:
	case model.StatusUpcoming:
		if !t.AllowEarlyJoin {
			return nil, fmt.Errorf("%w: status is %s", ErrNotEnrolling, status)
		}
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrNotEnrolling, status)
	}

	if _, err := l.store.GetPortfolioByParticipant(ctx, tournamentID, userID); err == nil {
		return nil, ErrAlreadyJoined
	}

	if t.CurrentParticipants >= t.MaxParticipants {
		return nil, ErrCapacityExceeded
	}

	if t.FeeTokens.IsPositive() {
		if err := l.wallet.Debit(ctx, userID, t.FeeTokens); err != nil {
			if err == wallet.ErrInsufficientBalance {
				return nil, fmt.Errorf("%w: need %s tokens", ErrInsufficientFee, t.FeeTokens)
			}
			return nil, fmt.Errorf("debit entry fee: %w", err)
		}
	}

	p := &model.Portfolio{
		ID:             uuid.New().String(),
		TournamentID:   tournamentID,
		UserID:         userID,
		CashBalance:    t.EntryCapital,
		InitialBalance: t.EntryCapital,
		Holdings:       make(map[string]*model.Holding),
		PeakAssets:     t.EntryCapital,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.CreatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}
	if err := l.store.SetParticipantCount(ctx, tournamentID, t.CurrentParticipants+1); err != nil {
		return nil, fmt.Errorf("update participant count: %w", err)
	}

	slog.Info("participant joined",
		"tournament", tournamentID,
		"user", userID,
		"portfolio", p.ID,
		"entry_capital", t.EntryCapital.String(),
	)
	return p, nil
}

// TradeRequest describes one trade submission. Price is resolved from the
// price feed at execution time, never client-supplied.
type TradeRequest struct {
	PortfolioID string
	Symbol      string
	Side        model.TradeSide
	Shares      decimal.Decimal
}

// ExecuteTrade validates and commits one trade. On any error the portfolio
// is byte-for-byte unchanged.
func (l *Ledger) ExecuteTrade(ctx context.Context, req TradeRequest) (*model.TradingRecord, error) {
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return nil, ErrInvalidSide
	}

	unlock := l.locks.Lock("portfolio:" + req.PortfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	t, err := l.store.GetTournament(ctx, p.TournamentID)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()

	// 1. Tournament must be live and inside trading hours.
	if status := lifecycle.Status(t, now); status != model.StatusOngoing {
		return nil, fmt.Errorf("%w: status is %s", ErrTradingClosed, status)
	}
	if err := checkTradingHours(t.Rules.TradingHours, now); err != nil {
		return nil, err
	}

	// 2. Input shape.
	if req.Shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidShares
	}
	if !instrumentAllowed(t.Rules.AllowedInstruments, req.Symbol) {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotAllowed, req.Symbol)
	}

	// Server-side price resolution. The only true I/O wait on this path;
	// a timeout here cancels the trade with no state change.
	price, err := l.feed.Quote(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	totalAmount := req.Shares.Mul(price)
	fee := l.fees.Fee(totalAmount)

	work := p.Clone()
	var record *model.TradingRecord
	if req.Side == model.SideBuy {
		record, err = l.applyBuy(work, t, req, price, totalAmount, fee, now)
	} else {
		record, err = l.applySell(work, t, req, price, totalAmount, fee, now)
	}
	if err != nil {
		return nil, err
	}

	// 3. Daily trade limit counts today's committed trades.
	if limit := t.Rules.RiskLimits.MaxDailyTrades; limit > 0 {
		count, err := l.store.CountTradesSince(ctx, p.ID, clock.Midnight(now))
		if err != nil {
			return nil, fmt.Errorf("count daily trades: %w", err)
		}
		if count >= limit {
			return nil, fmt.Errorf("%w: %d of %d used", ErrDailyTradeLimitExceeded, count, limit)
		}
	}

	// 4. Projected post-trade drawdown from peak must stay within limits.
	// Rejected outright, not just flagged.
	if err := checkDrawdownLimit(t.Rules.RiskLimits.MaxDrawdown, p.PeakAssets, work.TotalAssets()); err != nil {
		return nil, err
	}

	// Commit.
	if assets := work.TotalAssets(); assets.GreaterThan(work.PeakAssets) {
		work.PeakAssets = assets
	}
	work.TotalTrades++
	work.UpdatedAt = now

	if err := l.store.UpdatePortfolio(ctx, work); err != nil {
		return nil, fmt.Errorf("commit portfolio: %w", err)
	}
	if err := l.store.InsertTradingRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("record trade: %w", err)
	}

	slog.Info("trade executed",
		"trade_id", record.ID,
		"portfolio", p.ID,
		"symbol", req.Symbol,
		"side", req.Side,
		"shares", req.Shares.String(),
		"price", price.String(),
		"fee", fee.String(),
		"cash", work.CashBalance.String(),
	)
	return record, nil
}

// applyBuy mutates the clone with a buy and returns the audit record.
func (l *Ledger) applyBuy(work *model.Portfolio, t *model.Tournament, req TradeRequest,
	price, totalAmount, fee decimal.Decimal, now time.Time) (*model.TradingRecord, error) {

	cost := totalAmount.Add(fee)
	newCash := work.CashBalance.Sub(cost)
	if newCash.LessThan(cashFloor(t.Rules.RiskLimits.MaxLeverage, work.TotalAssets())) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, work.CashBalance)
	}

	// Position size against projected post-trade assets, marking this
	// symbol at the execution price.
	if maxSize := t.Rules.MaxPositionSize; maxSize.IsPositive() {
		existing := decimal.Zero
		if h, ok := work.Holdings[req.Symbol]; ok {
			existing = h.Shares
		}
		posValue := existing.Add(req.Shares).Mul(price)
		projected := markedAssets(work, req.Symbol, price).Sub(fee)
		if projected.IsPositive() && posValue.Div(projected).GreaterThan(maxSize) {
			return nil, fmt.Errorf("%w: position would be %s of portfolio (max %s)",
				ErrPositionLimitExceeded, posValue.Div(projected).Round(4), maxSize)
		}
	}

	work.CashBalance = newCash
	h, ok := work.Holdings[req.Symbol]
	if !ok {
		h = &model.Holding{Symbol: req.Symbol, FirstPurchase: now}
		work.Holdings[req.Symbol] = h
	}
	// Volume-weighted average price across buys. A buy that covers a short
	// resets the basis once the position flips long.
	newShares := h.Shares.Add(req.Shares)
	if h.Shares.IsPositive() {
		h.AveragePrice = h.Shares.Mul(h.AveragePrice).Add(req.Shares.Mul(price)).Div(newShares)
	} else {
		h.AveragePrice = price
	}
	h.Shares = newShares
	h.CurrentPrice = price
	h.LastUpdated = now
	if h.Shares.IsZero() {
		delete(work.Holdings, req.Symbol)
	}

	return &model.TradingRecord{
		ID:           uuid.New().String(),
		PortfolioID:  work.ID,
		TournamentID: work.TournamentID,
		UserID:       work.UserID,
		Symbol:       req.Symbol,
		Side:         model.SideBuy,
		Shares:       req.Shares,
		Price:        price,
		TotalAmount:  totalAmount,
		Fee:          fee,
		NetAmount:    totalAmount.Add(fee).Neg(),
		Timestamp:    now,
	}, nil
}

// applySell mutates the clone with a sell and returns the audit record.
func (l *Ledger) applySell(work *model.Portfolio, t *model.Tournament, req TradeRequest,
	price, totalAmount, fee decimal.Decimal, now time.Time) (*model.TradingRecord, error) {

	h := work.Holdings[req.Symbol]
	held := decimal.Zero
	if h != nil {
		held = h.Shares
	}
	if !t.Rules.AllowShortSelling && req.Shares.GreaterThan(held) {
		return nil, fmt.Errorf("%w: have %s, selling %s", ErrInsufficientShares, held, req.Shares)
	}

	record := &model.TradingRecord{
		ID:           uuid.New().String(),
		PortfolioID:  work.ID,
		TournamentID: work.TournamentID,
		UserID:       work.UserID,
		Symbol:       req.Symbol,
		Side:         model.SideSell,
		Shares:       req.Shares,
		Price:        price,
		TotalAmount:  totalAmount,
		Fee:          fee,
		NetAmount:    totalAmount.Sub(fee),
		Timestamp:    now,
	}

	// Realize gain/loss against average cost for the closed portion.
	if h != nil && held.IsPositive() {
		closeQty := decimal.Min(req.Shares, held)
		realized := price.Sub(h.AveragePrice).Mul(closeQty)
		record.RealizedGainLoss = &realized
		if h.AveragePrice.IsPositive() {
			pct := price.Sub(h.AveragePrice).Div(h.AveragePrice).Mul(hundred)
			record.RealizedGainLossPct = &pct
		}
		work.ClosingTrades++
		if realized.IsPositive() {
			work.WinningTrades++
		}
	}

	work.CashBalance = work.CashBalance.Add(record.NetAmount)
	if h == nil {
		h = &model.Holding{Symbol: req.Symbol, FirstPurchase: now, AveragePrice: price}
		work.Holdings[req.Symbol] = h
	}
	h.Shares = h.Shares.Sub(req.Shares)
	if h.Shares.IsNegative() && held.GreaterThanOrEqual(decimal.Zero) {
		// Position flipped short; the short portion's basis is this price.
		h.AveragePrice = price
	}
	h.CurrentPrice = price
	h.LastUpdated = now
	if h.Shares.IsZero() {
		delete(work.Holdings, req.Symbol)
	}

	return record, nil
}

// MarkToMarket refreshes holdings' current prices from the quote map and
// persists the revalued portfolio. A read-refresh, not a trade: cash and
// share counts are untouched and no audit record is written.
func (l *Ledger) MarkToMarket(ctx context.Context, portfolioID string, quotes map[string]decimal.Decimal) (*model.Portfolio, error) {
	unlock := l.locks.Lock("portfolio:" + portfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()

	changed := false
	for sym, h := range p.Holdings {
		price, ok := quotes[sym]
		if !ok || price.Equal(h.CurrentPrice) {
			continue
		}
		h.CurrentPrice = price
		h.LastUpdated = now
		changed = true
	}
	if !changed {
		return p, nil
	}

	if assets := p.TotalAssets(); assets.GreaterThan(p.PeakAssets) {
		p.PeakAssets = assets
	}
	p.UpdatedAt = now
	if err := l.store.UpdatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("commit mark-to-market: %w", err)
	}
	return p, nil
}

// EnsureDailySnapshot appends today's (date, totalAssets) point to the
// portfolio's value history if the day has none yet. Reports whether a
// point was added.
func (l *Ledger) EnsureDailySnapshot(ctx context.Context, portfolioID string) (bool, error) {
	unlock := l.locks.Lock("portfolio:" + portfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return false, err
	}
	if !valuation.AppendDailySnapshot(p, l.clock.Now()) {
		return false, nil
	}
	if err := l.store.UpdatePortfolio(ctx, p); err != nil {
		return false, fmt.Errorf("commit snapshot: %w", err)
	}
	return true, nil
}

// cashFloor is the lowest cash balance a trade may leave behind: zero
// without margin, or -(maxLeverage-1) × totalAssets when leverage above
// 1.0 is permitted.
func cashFloor(maxLeverage, totalAssets decimal.Decimal) decimal.Decimal {
	if maxLeverage.LessThanOrEqual(one) {
		return decimal.Zero
	}
	return maxLeverage.Sub(one).Mul(totalAssets).Neg()
}

// markedAssets values the portfolio with one symbol marked at the given
// price and every other holding at its last mark.
func markedAssets(p *model.Portfolio, symbol string, price decimal.Decimal) decimal.Decimal {
	total := p.CashBalance
	for sym, h := range p.Holdings {
		if sym == symbol {
			total = total.Add(h.Shares.Mul(price))
		} else {
			total = total.Add(h.TotalValue())
		}
	}
	return total
}

func checkDrawdownLimit(maxDrawdown, peak, projected decimal.Decimal) error {
	if !maxDrawdown.IsPositive() || !peak.IsPositive() {
		return nil
	}
	drawdown := peak.Sub(projected).Div(peak)
	if drawdown.GreaterThan(maxDrawdown) {
		return fmt.Errorf("%w: projected drawdown %s exceeds %s",
			ErrRiskLimitExceeded, drawdown.Round(4), maxDrawdown)
	}
	return nil
}

func instrumentAllowed(allowed []string, symbol string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == symbol {
			return true
		}
	}
	return false
}

// checkTradingHours rejects trades outside the rules' local-time window.
// Unparseable configuration fails open; it is validated at tournament
// construction.
func checkTradingHours(hours *model.TradingHours, now time.Time) error {
	if hours == nil {
		return nil
	}
	loc, err := time.LoadLocation(hours.Timezone)
	if err != nil {
		return nil
	}
	local := now.In(loc)

	start, err1 := time.ParseInLocation("15:04", hours.Start, loc)
	end, err2 := time.ParseInLocation("15:04", hours.End, loc)
	if err1 != nil || err2 != nil {
		return nil
	}

	minutes := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if minutes < startMin || minutes >= endMin {
		return fmt.Errorf("%w: outside trading hours %s-%s %s",
			ErrTradingClosed, hours.Start, hours.End, hours.Timezone)
	}
	return nil
}
