package ranking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/model"
	"github.com/arenax/tournament-engine/internal/ranking"
	"github.com/arenax/tournament-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var baseTime = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*ranking.Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return ranking.NewService(ms, clock.NewFake(baseTime)), ms
}

func seedTournament(t *testing.T, ms *store.MemoryStore, metric string) *model.Tournament {
	t.Helper()
	tourney := &model.Tournament{
		ID:              "t1",
		Name:            "July Open",
		StartTime:       baseTime.Add(-24 * time.Hour),
		EndTime:         baseTime.Add(6 * 24 * time.Hour),
		MaxParticipants: 100,
		EntryCapital:    d(1000),
		ReturnMetric:    metric,
	}
	if err := ms.CreateTournament(context.Background(), tourney); err != nil {
		t.Fatal(err)
	}
	return tourney
}

// seedPortfolio creates a cash-only portfolio whose return is set by cash.
func seedPortfolio(t *testing.T, ms *store.MemoryStore, id, userID string, cash float64, joined time.Time) {
	t.Helper()
	p := &model.Portfolio{
		ID:             id,
		TournamentID:   "t1",
		UserID:         userID,
		CashBalance:    d(cash),
		InitialBalance: d(1000),
		Holdings:       map[string]*model.Holding{},
		CreatedAt:      joined,
	}
	if err := ms.CreatePortfolio(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func TestRecompute_OrdersByReturn(t *testing.T) {
	svc, ms := newService(t)
	seedTournament(t, ms, "")
	seedPortfolio(t, ms, "p1", "alice", 1100, baseTime)
	seedPortfolio(t, ms, "p2", "bob", 1300, baseTime)
	seedPortfolio(t, ms, "p3", "carol", 900, baseTime)

	entries, err := svc.Recompute(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	wantOrder := []string{"bob", "alice", "carol"}
	for i, want := range wantOrder {
		if entries[i].UserID != want {
			t.Errorf("rank %d = %s, want %s", i+1, entries[i].UserID, want)
		}
		if entries[i].CurrentRank != i+1 {
			t.Errorf("entry %d has rank %d", i, entries[i].CurrentRank)
		}
	}
	if !entries[0].MetricValue.Equal(d(30)) {
		t.Errorf("leader metric = %s, want 30", entries[0].MetricValue)
	}
}

// Tied scores rank deterministically: earlier join first, then user ID.
func TestRecompute_TieBreakIsDeterministic(t *testing.T) {
	svc, ms := newService(t)
	seedTournament(t, ms, "")
	seedPortfolio(t, ms, "p1", "zoe", 1100, baseTime.Add(-2*time.Hour))
	seedPortfolio(t, ms, "p2", "bob", 1100, baseTime.Add(-time.Hour))
	seedPortfolio(t, ms, "p3", "amy", 1100, baseTime.Add(-time.Hour))

	for i := 0; i < 5; i++ {
		entries, err := svc.Recompute(context.Background(), "t1")
		if err != nil {
			t.Fatal(err)
		}
		got := []string{entries[0].UserID, entries[1].UserID, entries[2].UserID}
		want := []string{"zoe", "amy", "bob"}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("iteration %d: order = %v, want %v", i, got, want)
			}
		}
	}
}

func TestRecompute_TracksRankMovement(t *testing.T) {
	svc, ms := newService(t)
	seedTournament(t, ms, "")
	seedPortfolio(t, ms, "p1", "alice", 1200, baseTime)
	seedPortfolio(t, ms, "p2", "bob", 1100, baseTime)

	entries, err := svc.Recompute(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	// First computation: everyone is a first appearance.
	for _, e := range entries {
		if e.PreviousRank != 0 {
			t.Errorf("%s previous rank = %d, want 0", e.UserID, e.PreviousRank)
		}
		if e.Delta() != model.RankUnchanged {
			t.Errorf("%s delta = %s, want unchanged on first appearance", e.UserID, e.Delta())
		}
	}

	// Bob overtakes alice.
	p, err := ms.GetPortfolio(context.Background(), "p2")
	if err != nil {
		t.Fatal(err)
	}
	p.CashBalance = d(1500)
	if err := ms.UpdatePortfolio(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	entries, err = svc.Recompute(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	byUser := map[string]model.RankingEntry{}
	for _, e := range entries {
		byUser[e.UserID] = e
	}

	bob := byUser["bob"]
	if bob.CurrentRank != 1 || bob.PreviousRank != 2 || bob.Delta() != model.RankImproved {
		t.Errorf("bob = rank %d (prev %d) delta %s, want 1/2/improved",
			bob.CurrentRank, bob.PreviousRank, bob.Delta())
	}
	alice := byUser["alice"]
	if alice.CurrentRank != 2 || alice.PreviousRank != 1 || alice.Delta() != model.RankDeclined {
		t.Errorf("alice = rank %d (prev %d) delta %s, want 2/1/declined",
			alice.CurrentRank, alice.PreviousRank, alice.Delta())
	}
}

func TestRecompute_PersistsRanking(t *testing.T) {
	svc, ms := newService(t)
	seedTournament(t, ms, "")
	seedPortfolio(t, ms, "p1", "alice", 1100, baseTime)

	if _, err := svc.Recompute(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].UserID != "alice" {
		t.Fatalf("persisted ranking = %+v", entries)
	}
}

func TestRecompute_EmptyTournament(t *testing.T) {
	svc, ms := newService(t)
	seedTournament(t, ms, "")

	entries, err := svc.Recompute(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries for empty tournament", len(entries))
	}
}

// A TWR tournament ranks by chained daily returns once a portfolio has
// history; a cash-flow-free comparison can invert the cumulative order.
func TestRecompute_TimeWeightedMetric(t *testing.T) {
	svc, ms := newService(t)
	seedTournament(t, ms, ranking.MetricTWR)

	day0 := time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC)
	p1 := &model.Portfolio{
		ID: "p1", TournamentID: "t1", UserID: "alice",
		CashBalance: d(1210), InitialBalance: d(1000),
		Holdings:  map[string]*model.Holding{},
		CreatedAt: baseTime,
		DailyValueHistory: []model.ValueSnapshot{
			{Date: day0, TotalAssets: d(1000)},
			{Date: day0.AddDate(0, 0, 1), TotalAssets: d(1100)},
			{Date: day0.AddDate(0, 0, 2), TotalAssets: d(1210)},
		},
	}
	if err := ms.CreatePortfolio(context.Background(), p1); err != nil {
		t.Fatal(err)
	}
	// No history yet: falls back to cumulative return percentage.
	seedPortfolio(t, ms, "p2", "bob", 1150, baseTime)

	entries, err := svc.Recompute(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].UserID != "alice" {
		t.Errorf("leader = %s, want alice (21%% TWR beats 15%% return)", entries[0].UserID)
	}
	if !entries[0].MetricValue.Equal(d(21)) {
		t.Errorf("alice metric = %s, want 21", entries[0].MetricValue)
	}
}
