package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arenax/tournament-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: tournament config, portfolio views, and
// leaderboards. Writes go to the primary store and invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Tournaments ---

func (s *CachedStore) CreateTournament(ctx context.Context, t *model.Tournament) error {
	if err := s.primary.CreateTournament(ctx, t); err != nil {
		return err
	}
	s.cacheJSON(ctx, tournamentKey(t.ID), t)
	return nil
}

func (s *CachedStore) GetTournament(ctx context.Context, id string) (*model.Tournament, error) {
	var t model.Tournament
	if s.readJSON(ctx, tournamentKey(id), &t) {
		return &t, nil
	}

	got, err := s.primary.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, tournamentKey(id), got)
	return got, nil
}

func (s *CachedStore) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	return s.primary.ListTournaments(ctx)
}

func (s *CachedStore) SetParticipantCount(ctx context.Context, id string, count int) error {
	if err := s.primary.SetParticipantCount(ctx, id, count); err != nil {
		return err
	}
	s.rdb.Del(ctx, tournamentKey(id))
	return nil
}

// --- Portfolios ---

func (s *CachedStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.CreatePortfolio(ctx, p); err != nil {
		return err
	}
	s.cacheJSON(ctx, portfolioKey(p.ID), p)
	return nil
}

func (s *CachedStore) GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error) {
	var p model.Portfolio
	if s.readJSON(ctx, portfolioKey(id), &p) {
		if p.Holdings == nil {
			p.Holdings = make(map[string]*model.Holding)
		}
		return &p, nil
	}

	got, err := s.primary.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, portfolioKey(id), got)
	return got, nil
}

func (s *CachedStore) GetPortfolioByParticipant(ctx context.Context, tournamentID, userID string) (*model.Portfolio, error) {
	return s.primary.GetPortfolioByParticipant(ctx, tournamentID, userID)
}

func (s *CachedStore) ListPortfoliosByTournament(ctx context.Context, tournamentID string) ([]model.Portfolio, error) {
	return s.primary.ListPortfoliosByTournament(ctx, tournamentID)
}

func (s *CachedStore) UpdatePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.UpdatePortfolio(ctx, p); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, portfolioKey(p.ID))
	return nil
}

// --- Trade ledger (append-only, not cached) ---

func (s *CachedStore) InsertTradingRecord(ctx context.Context, rec *model.TradingRecord) error {
	if err := s.primary.InsertTradingRecord(ctx, rec); err != nil {
		return err
	}
	s.rdb.Del(ctx, portfolioKey(rec.PortfolioID))
	return nil
}

func (s *CachedStore) GetTradingRecords(ctx context.Context, portfolioID string) ([]model.TradingRecord, error) {
	return s.primary.GetTradingRecords(ctx, portfolioID)
}

func (s *CachedStore) CountTradesSince(ctx context.Context, portfolioID string, since time.Time) (int, error) {
	return s.primary.CountTradesSince(ctx, portfolioID, since)
}

// --- Rankings ---

func (s *CachedStore) ReplaceRanking(ctx context.Context, tournamentID string, entries []model.RankingEntry) error {
	if err := s.primary.ReplaceRanking(ctx, tournamentID, entries); err != nil {
		return err
	}
	s.cacheJSON(ctx, rankingKey(tournamentID), entries)
	return nil
}

func (s *CachedStore) GetRanking(ctx context.Context, tournamentID string) ([]model.RankingEntry, error) {
	var entries []model.RankingEntry
	if s.readJSON(ctx, rankingKey(tournamentID), &entries) {
		return entries, nil
	}

	got, err := s.primary.GetRanking(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, rankingKey(tournamentID), got)
	return got, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) readJSON(ctx context.Context, key string, v interface{}) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func tournamentKey(id string) string { return fmt.Sprintf("tournament:%s", id) }
func portfolioKey(id string) string  { return fmt.Sprintf("portfolio:%s", id) }
func rankingKey(id string) string    { return fmt.Sprintf("ranking:%s", id) }
