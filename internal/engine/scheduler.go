package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/ledger"
	"github.com/arenax/tournament-engine/internal/lifecycle"
	"github.com/arenax/tournament-engine/internal/metrics"
	"github.com/arenax/tournament-engine/internal/model"
	"github.com/arenax/tournament-engine/internal/pricefeed"
	"github.com/arenax/tournament-engine/internal/ranking"
	"github.com/arenax/tournament-engine/internal/store"
)

// Scheduler runs the revaluation tick: refresh quotes, mark live
// portfolios to market, append due daily snapshots, recompute rankings,
// and broadcast lifecycle transitions. It absorbs price-driven valuation
// changes between trades; a leaderboard lags a committed trade by at most
// one tick.
type Scheduler struct {
	store    store.Store
	ledger   *ledger.Ledger
	ranking  *ranking.Service
	feed     pricefeed.Feed
	clock    clock.Clock
	wsHub    *WSHub
	interval time.Duration

	lastStatus map[string]model.TournamentStatus
}

// NewScheduler creates a scheduler ticking at the given interval.
func NewScheduler(st store.Store, led *ledger.Ledger, rank *ranking.Service,
	feed pricefeed.Feed, clk clock.Clock, hub *WSHub, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		store:      st,
		ledger:     led,
		ranking:    rank,
		feed:       feed,
		clock:      clk,
		wsHub:      hub,
		interval:   interval,
		lastStatus: make(map[string]model.TournamentStatus),
	}
}

// Run ticks until ctx is cancelled. Call in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full revaluation pass. Exported so tests and operators
// can force a pass without waiting for the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	tournaments, err := s.store.ListTournaments(ctx)
	if err != nil {
		slog.Error("scheduler: list tournaments failed", "err", err)
		return
	}

	now := s.clock.Now()
	for i := range tournaments {
		t := &tournaments[i]
		s.announceTransition(t, now)

		status := lifecycle.Status(t, now)
		if status != model.StatusOngoing && status != model.StatusSettling {
			continue
		}
		s.revalue(ctx, t)
	}
}

// announceTransition broadcasts a status_changed event when a tournament
// crossed a boundary since the previous tick.
func (s *Scheduler) announceTransition(t *model.Tournament, now time.Time) {
	status := lifecycle.Status(t, now)
	prev, seen := s.lastStatus[t.ID]
	s.lastStatus[t.ID] = status

	if !seen || prev == status {
		return
	}
	slog.Info("tournament status changed", "tournament", t.ID, "from", prev, "to", status)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         EventStatusChanged,
			TournamentID: t.ID,
			Status:       string(status),
			PrevStatus:   string(prev),
		})
	}
}

// revalue marks every portfolio in the tournament to market, appends due
// daily snapshots, and recomputes the leaderboard.
func (s *Scheduler) revalue(ctx context.Context, t *model.Tournament) {
	portfolios, err := s.store.ListPortfoliosByTournament(ctx, t.ID)
	if err != nil {
		slog.Error("scheduler: list portfolios failed", "tournament", t.ID, "err", err)
		return
	}
	if len(portfolios) == 0 {
		return
	}

	symbols := heldSymbols(portfolios)
	quotes, err := pricefeed.Quotes(ctx, s.feed, symbols)
	if err != nil {
		metrics.PriceFeedFailures.Inc()
		slog.Warn("scheduler: quote refresh failed", "tournament", t.ID, "err", err)
		return
	}

	for i := range portfolios {
		pid := portfolios[i].ID
		if _, err := s.ledger.MarkToMarket(ctx, pid, quotes); err != nil {
			slog.Warn("scheduler: mark-to-market failed", "portfolio", pid, "err", err)
			continue
		}
		added, err := s.ledger.EnsureDailySnapshot(ctx, pid)
		if err != nil {
			slog.Warn("scheduler: snapshot failed", "portfolio", pid, "err", err)
		} else if added {
			metrics.SnapshotsAppended.Inc()
		}
	}

	if _, err := s.ranking.Recompute(ctx, t.ID); err != nil {
		slog.Warn("scheduler: ranking recompute failed", "tournament", t.ID, "err", err)
		return
	}
	metrics.RankingRecomputes.Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         EventRankingUpdated,
			TournamentID: t.ID,
		})
	}
}

// heldSymbols collects the distinct symbols across all portfolios.
func heldSymbols(portfolios []model.Portfolio) []string {
	seen := make(map[string]bool)
	var symbols []string
	for i := range portfolios {
		for sym := range portfolios[i].Holdings {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}
