// Package ranking orders tournament participants by the tournament's
// configured return metric and tracks rank movement between computations.
//
// Recomputation is a pure read-then-replace of one tournament's
// leaderboard: portfolios are only ever read, never mutated. A leaderboard
// may lag the latest committed trade by at most one revaluation tick; that
// staleness bound is accepted and documented, not a bug.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/model"
	"github.com/arenax/tournament-engine/internal/store"
	"github.com/arenax/tournament-engine/internal/valuation"
)

// MetricTWR selects time-weighted return as the ranking metric; anything
// else ranks by cumulative return percentage.
const MetricTWR = "twr"

// Service computes and serves tournament leaderboards.
type Service struct {
	store store.Store
	clock clock.Clock
}

// NewService creates a ranking service.
func NewService(st store.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{store: st, clock: clk}
}

// Get returns the current leaderboard without recomputing.
func (s *Service) Get(ctx context.Context, tournamentID string) ([]model.RankingEntry, error) {
	return s.store.GetRanking(ctx, tournamentID)
}

// Recompute rebuilds one tournament's leaderboard from current portfolio
// state. Ties on the metric break deterministically: earlier join time
// first, then user ID — the first mover keeps the higher rank.
func (s *Service) Recompute(ctx context.Context, tournamentID string) ([]model.RankingEntry, error) {
	t, err := s.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	portfolios, err := s.store.ListPortfoliosByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	if len(portfolios) == 0 {
		return nil, nil
	}

	previous, err := s.store.GetRanking(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("load previous ranking: %w", err)
	}
	prevRanks := make(map[string]int, len(previous))
	for _, e := range previous {
		prevRanks[e.UserID] = e.CurrentRank
	}

	type scored struct {
		portfolio *model.Portfolio
		value     decimal.Decimal
	}
	scores := make([]scored, 0, len(portfolios))
	for i := range portfolios {
		p := &portfolios[i]
		scores = append(scores, scored{portfolio: p, value: metricValue(t, p)})
	}

	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if !a.value.Equal(b.value) {
			return a.value.GreaterThan(b.value)
		}
		if !a.portfolio.CreatedAt.Equal(b.portfolio.CreatedAt) {
			return a.portfolio.CreatedAt.Before(b.portfolio.CreatedAt)
		}
		return a.portfolio.UserID < b.portfolio.UserID
	})

	now := s.clock.Now()
	entries := make([]model.RankingEntry, len(scores))
	for i, sc := range scores {
		entries[i] = model.RankingEntry{
			TournamentID: tournamentID,
			UserID:       sc.portfolio.UserID,
			PortfolioID:  sc.portfolio.ID,
			CurrentRank:  i + 1,
			PreviousRank: prevRanks[sc.portfolio.UserID],
			MetricValue:  sc.value,
			AsOf:         now,
		}
	}

	if err := s.store.ReplaceRanking(ctx, tournamentID, entries); err != nil {
		return nil, fmt.Errorf("replace ranking: %w", err)
	}

	slog.Debug("ranking recomputed",
		"tournament", tournamentID,
		"participants", len(entries),
	)
	return entries, nil
}

// metricValue resolves one portfolio's score per the tournament's
// configured return metric.
func metricValue(t *model.Tournament, p *model.Portfolio) decimal.Decimal {
	m := valuation.Compute(p)
	if t.ReturnMetric == MetricTWR && len(p.DailyValueHistory) >= 2 {
		return m.TimeWeightedReturn
	}
	return m.ReturnPercentage
}
