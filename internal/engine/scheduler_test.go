package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/engine"
	"github.com/arenax/tournament-engine/internal/ledger"
	"github.com/arenax/tournament-engine/internal/model"
	"github.com/arenax/tournament-engine/internal/pricefeed"
	"github.com/arenax/tournament-engine/internal/ranking"
	"github.com/arenax/tournament-engine/internal/store"
	"github.com/arenax/tournament-engine/internal/wallet"
)

func TestScheduler_TickRevaluesAndRanks(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	feed := pricefeed.NewStaticFeed(map[string]decimal.Decimal{"SPY": d(580)})
	clk := clock.NewFake(tStart.Add(-24 * time.Hour))
	led := ledger.New(ms, feed, wallet.NewMemoryWallet(), clk, ledger.NoFee{})
	rankSvc := ranking.NewService(ms, clk)

	tourney := &model.Tournament{
		ID:              "t1",
		Name:            "July Open",
		StartTime:       tStart,
		EndTime:         tEnd,
		MaxParticipants: 10,
		EntryCapital:    decimal.NewFromInt(1000000),
	}
	if err := ms.CreateTournament(ctx, tourney); err != nil {
		t.Fatal(err)
	}
	p, err := led.Join(ctx, "t1", "alice")
	if err != nil {
		t.Fatal(err)
	}

	clk.Set(tStart.Add(time.Hour))
	if _, err := led.ExecuteTrade(ctx, ledger.TradeRequest{
		PortfolioID: p.ID, Symbol: "SPY", Side: model.SideBuy, Shares: d(100),
	}); err != nil {
		t.Fatal(err)
	}

	// Price moves between ticks; the scheduler picks it up.
	feed.SetPrice("SPY", d(620))
	sched := engine.NewScheduler(ms, led, rankSvc, feed, clk, nil, time.Minute)
	sched.Tick(ctx)

	got, err := ms.GetPortfolio(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Holdings["SPY"].CurrentPrice.Equal(d(620)) {
		t.Errorf("mark = %s, want 620 after tick", got.Holdings["SPY"].CurrentPrice)
	}
	if len(got.DailyValueHistory) != 1 {
		t.Errorf("history = %d snapshots, want 1 after first tick", len(got.DailyValueHistory))
	}

	entries, err := ms.GetRanking(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].UserID != "alice" {
		t.Fatalf("ranking = %+v", entries)
	}
	// 100 shares gained 40 each: 4000 on 1,000,000 = 0.4%.
	if !entries[0].MetricValue.Equal(d(0.4)) {
		t.Errorf("metric = %s, want 0.4", entries[0].MetricValue)
	}

	// Second tick the same day adds nothing to the history.
	sched.Tick(ctx)
	got, _ = ms.GetPortfolio(ctx, p.ID)
	if len(got.DailyValueHistory) != 1 {
		t.Errorf("history = %d snapshots after same-day tick, want 1", len(got.DailyValueHistory))
	}
}

func TestScheduler_SkipsIdleTournaments(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	feed := pricefeed.NewStaticFeed(nil)
	clk := clock.NewFake(tStart.Add(-24 * time.Hour)) // enrolling
	led := ledger.New(ms, feed, wallet.NewMemoryWallet(), clk, ledger.NoFee{})
	rankSvc := ranking.NewService(ms, clk)

	tourney := &model.Tournament{
		ID:              "t1",
		Name:            "July Open",
		StartTime:       tStart,
		EndTime:         tEnd,
		MaxParticipants: 10,
		EntryCapital:    decimal.NewFromInt(1000000),
	}
	if err := ms.CreateTournament(ctx, tourney); err != nil {
		t.Fatal(err)
	}
	p, err := led.Join(ctx, "t1", "alice")
	if err != nil {
		t.Fatal(err)
	}

	sched := engine.NewScheduler(ms, led, rankSvc, feed, clk, nil, time.Minute)
	sched.Tick(ctx)

	got, _ := ms.GetPortfolio(ctx, p.ID)
	if len(got.DailyValueHistory) != 0 {
		t.Errorf("enrolling tournament was revalued: %d snapshots", len(got.DailyValueHistory))
	}
	entries, _ := ms.GetRanking(ctx, "t1")
	if len(entries) != 0 {
		t.Errorf("enrolling tournament was ranked: %d entries", len(entries))
	}
}
