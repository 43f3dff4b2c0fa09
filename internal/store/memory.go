package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arenax/tournament-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	tournaments map[string]*model.Tournament
	portfolios  map[string]*model.Portfolio
	ledger      []model.TradingRecord
	rankings    map[string][]model.RankingEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tournaments: make(map[string]*model.Tournament),
		portfolios:  make(map[string]*model.Portfolio),
		rankings:    make(map[string][]model.RankingEntry),
	}
}

func (s *MemoryStore) CreateTournament(_ context.Context, t *model.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tournaments[t.ID]; ok {
		return fmt.Errorf("tournament %s: %w", t.ID, ErrAlreadyExists)
	}
	cp := *t
	s.tournaments[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTournament(_ context.Context, id string) (*model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tournaments[id]
	if !ok {
		return nil, fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTournaments(_ context.Context) ([]model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *MemoryStore) SetParticipantCount(_ context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	t.CurrentParticipants = count
	return nil
}

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[p.ID]; ok {
		return fmt.Errorf("portfolio %s: %w", p.ID, ErrAlreadyExists)
	}
	for _, existing := range s.portfolios {
		if existing.TournamentID == p.TournamentID && existing.UserID == p.UserID {
			return fmt.Errorf("portfolio for user %s in tournament %s: %w",
				p.UserID, p.TournamentID, ErrAlreadyExists)
		}
	}
	s.portfolios[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, id string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) GetPortfolioByParticipant(_ context.Context, tournamentID, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.portfolios {
		if p.TournamentID == tournamentID && p.UserID == userID {
			return p.Clone(), nil
		}
	}
	return nil, fmt.Errorf("portfolio for user %s in tournament %s: %w", userID, tournamentID, ErrNotFound)
}

func (s *MemoryStore) ListPortfoliosByTournament(_ context.Context, tournamentID string) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Portfolio
	for _, p := range s.portfolios {
		if p.TournamentID == tournamentID {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[p.ID]; !ok {
		return fmt.Errorf("portfolio %s: %w", p.ID, ErrNotFound)
	}
	s.portfolios[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) InsertTradingRecord(_ context.Context, rec *model.TradingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *rec)
	return nil
}

func (s *MemoryStore) GetTradingRecords(_ context.Context, portfolioID string) ([]model.TradingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TradingRecord
	for _, rec := range s.ledger {
		if rec.PortfolioID == portfolioID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountTradesSince(_ context.Context, portfolioID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.ledger {
		if rec.PortfolioID == portfolioID && !rec.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ReplaceRanking(_ context.Context, tournamentID string, entries []model.RankingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]model.RankingEntry, len(entries))
	copy(cp, entries)
	s.rankings[tournamentID] = cp
	return nil
}

func (s *MemoryStore) GetRanking(_ context.Context, tournamentID string) ([]model.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.rankings[tournamentID]
	cp := make([]model.RankingEntry, len(entries))
	copy(cp, entries)
	return cp, nil
}
