// Package store defines the persistence interface for the tournament
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arenax/tournament-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned on unique-constraint violations
// (duplicate tournament, duplicate portfolio per participant).
var ErrAlreadyExists = errors.New("store: already exists")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. All TradingRecord writes are
// append-only inserts, never updates.
type Store interface {
	// --- Tournaments ---

	// CreateTournament persists a new tournament.
	CreateTournament(ctx context.Context, t *model.Tournament) error

	// GetTournament retrieves a tournament by ID.
	GetTournament(ctx context.Context, id string) (*model.Tournament, error)

	// ListTournaments returns all tournaments.
	ListTournaments(ctx context.Context) ([]model.Tournament, error)

	// SetParticipantCount updates the cached participant counter.
	SetParticipantCount(ctx context.Context, id string, count int) error

	// --- Portfolios ---

	// CreatePortfolio persists a new portfolio. Fails with
	// ErrAlreadyExists when the (tournament, user) pair already owns one.
	CreatePortfolio(ctx context.Context, p *model.Portfolio) error

	// GetPortfolio retrieves a portfolio by ID.
	GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error)

	// GetPortfolioByParticipant retrieves the portfolio owned by one
	// (tournament, user) pair.
	GetPortfolioByParticipant(ctx context.Context, tournamentID, userID string) (*model.Portfolio, error)

	// ListPortfoliosByTournament returns every portfolio in a tournament.
	ListPortfoliosByTournament(ctx context.Context, tournamentID string) ([]model.Portfolio, error)

	// UpdatePortfolio replaces the stored portfolio state wholesale.
	UpdatePortfolio(ctx context.Context, p *model.Portfolio) error

	// --- Immutable trade ledger ---

	// InsertTradingRecord appends an immutable trade record.
	InsertTradingRecord(ctx context.Context, rec *model.TradingRecord) error

	// GetTradingRecords returns all trades for a portfolio in time order.
	GetTradingRecords(ctx context.Context, portfolioID string) ([]model.TradingRecord, error)

	// CountTradesSince counts a portfolio's trades at or after the instant,
	// the input to the daily trade limit.
	CountTradesSince(ctx context.Context, portfolioID string, since time.Time) (int, error)

	// --- Rankings ---

	// ReplaceRanking atomically swaps a tournament's leaderboard.
	ReplaceRanking(ctx context.Context, tournamentID string, entries []model.RankingEntry) error

	// GetRanking returns the current leaderboard in rank order.
	GetRanking(ctx context.Context, tournamentID string) ([]model.RankingEntry, error)
}
