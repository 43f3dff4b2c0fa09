package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// structured sub-documents (rules, holdings, value history) as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateTournament(ctx context.Context, t *model.Tournament) error {
	rules, err := json.Marshal(t.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tournaments
		   (id, name, description, start_time, end_time, enroll_open, settlement_window_secs,
		    max_participants, current_participants, allow_early_join,
		    entry_capital, fee_tokens, return_metric, reset_mode, rules, cancelled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11::NUMERIC, $12::NUMERIC, $13, $14, $15, $16, $17)`,
		t.ID, t.Name, t.Description, t.StartTime, t.EndTime, nullableTime(t.EnrollOpen),
		int64(t.SettlementWindow/time.Second),
		t.MaxParticipants, t.CurrentParticipants, t.AllowEarlyJoin,
		t.EntryCapital.String(), t.FeeTokens.String(),
		t.ReturnMetric, t.ResetMode, rules, t.Cancelled, t.CreatedAt,
	)
	return err
}

const tournamentColumns = `
	id, name, description, start_time, end_time, enroll_open, settlement_window_secs,
	max_participants, current_participants, allow_early_join,
	entry_capital::TEXT, fee_tokens::TEXT, return_metric, reset_mode, rules, cancelled, created_at`

func scanTournament(row pgx.Row) (*model.Tournament, error) {
	var t model.Tournament
	var enrollOpen *time.Time
	var settlementSecs int64
	var entryCapital, feeTokens string
	var rules []byte

	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.StartTime, &t.EndTime,
		&enrollOpen, &settlementSecs,
		&t.MaxParticipants, &t.CurrentParticipants, &t.AllowEarlyJoin,
		&entryCapital, &feeTokens, &t.ReturnMetric, &t.ResetMode, &rules,
		&t.Cancelled, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if enrollOpen != nil {
		t.EnrollOpen = *enrollOpen
	}
	t.SettlementWindow = time.Duration(settlementSecs) * time.Second
	t.EntryCapital, _ = decimal.NewFromString(entryCapital)
	t.FeeTokens, _ = decimal.NewFromString(feeTokens)
	if err := json.Unmarshal(rules, &t.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) GetTournament(ctx context.Context, id string) (*model.Tournament, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id)
	t, err := scanTournament(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tournament %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get tournament %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetParticipantCount(ctx context.Context, id string, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tournaments SET current_participants = $2 WHERE id = $1`, id, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	holdings, history, err := marshalPortfolioDocs(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO portfolios
		   (id, tournament_id, user_id, cash_balance, initial_balance, holdings,
		    total_trades, closing_trades, winning_trades, peak_assets,
		    daily_value_history, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9, $10::NUMERIC, $11, $12, $13)`,
		p.ID, p.TournamentID, p.UserID,
		p.CashBalance.String(), p.InitialBalance.String(), holdings,
		p.TotalTrades, p.ClosingTrades, p.WinningTrades, p.PeakAssets.String(),
		history, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("portfolio for user %s in tournament %s: %w",
			p.UserID, p.TournamentID, ErrAlreadyExists)
	}
	return err
}

const portfolioColumns = `
	id, tournament_id, user_id, cash_balance::TEXT, initial_balance::TEXT, holdings,
	total_trades, closing_trades, winning_trades, peak_assets::TEXT,
	daily_value_history, created_at, updated_at`

func scanPortfolio(row pgx.Row) (*model.Portfolio, error) {
	var p model.Portfolio
	var cash, initial, peak string
	var holdings, history []byte

	err := row.Scan(&p.ID, &p.TournamentID, &p.UserID, &cash, &initial, &holdings,
		&p.TotalTrades, &p.ClosingTrades, &p.WinningTrades, &peak,
		&history, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.CashBalance, _ = decimal.NewFromString(cash)
	p.InitialBalance, _ = decimal.NewFromString(initial)
	p.PeakAssets, _ = decimal.NewFromString(peak)
	if err := json.Unmarshal(holdings, &p.Holdings); err != nil {
		return nil, fmt.Errorf("unmarshal holdings: %w", err)
	}
	if err := json.Unmarshal(history, &p.DailyValueHistory); err != nil {
		return nil, fmt.Errorf("unmarshal value history: %w", err)
	}
	if p.Holdings == nil {
		p.Holdings = make(map[string]*model.Holding)
	}
	return &p, nil
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id)
	p, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("portfolio %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get portfolio %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) GetPortfolioByParticipant(ctx context.Context, tournamentID, userID string) (*model.Portfolio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios
		 WHERE tournament_id = $1 AND user_id = $2`, tournamentID, userID)
	p, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("portfolio for user %s in tournament %s: %w",
				userID, tournamentID, ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListPortfoliosByTournament(ctx context.Context, tournamentID string) ([]model.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+portfolioColumns+` FROM portfolios
		 WHERE tournament_id = $1 ORDER BY created_at`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdatePortfolio(ctx context.Context, p *model.Portfolio) error {
	holdings, history, err := marshalPortfolioDocs(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE portfolios
		 SET cash_balance = $2::NUMERIC, holdings = $3,
		     total_trades = $4, closing_trades = $5, winning_trades = $6,
		     peak_assets = $7::NUMERIC, daily_value_history = $8, updated_at = $9
		 WHERE id = $1`,
		p.ID, p.CashBalance.String(), holdings,
		p.TotalTrades, p.ClosingTrades, p.WinningTrades,
		p.PeakAssets.String(), history, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("portfolio %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) InsertTradingRecord(ctx context.Context, rec *model.TradingRecord) error {
	var realized, realizedPct *string
	if rec.RealizedGainLoss != nil {
		v := rec.RealizedGainLoss.String()
		realized = &v
	}
	if rec.RealizedGainLossPct != nil {
		v := rec.RealizedGainLossPct.String()
		realizedPct = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trading_records
		   (id, portfolio_id, tournament_id, user_id, symbol, side,
		    shares, price, total_amount, fee, net_amount,
		    realized_gain_loss, realized_gain_loss_pct, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6,
		         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC,
		         $12::NUMERIC, $13::NUMERIC, $14)`,
		rec.ID, rec.PortfolioID, rec.TournamentID, rec.UserID, rec.Symbol, rec.Side,
		rec.Shares.String(), rec.Price.String(), rec.TotalAmount.String(),
		rec.Fee.String(), rec.NetAmount.String(),
		realized, realizedPct, rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetTradingRecords(ctx context.Context, portfolioID string) ([]model.TradingRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portfolio_id, tournament_id, user_id, symbol, side,
		        shares::TEXT, price::TEXT, total_amount::TEXT, fee::TEXT, net_amount::TEXT,
		        realized_gain_loss::TEXT, realized_gain_loss_pct::TEXT, timestamp
		 FROM trading_records WHERE portfolio_id = $1 ORDER BY timestamp`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TradingRecord
	for rows.Next() {
		var rec model.TradingRecord
		var shares, price, total, fee, net string
		var realized, realizedPct *string

		if err := rows.Scan(&rec.ID, &rec.PortfolioID, &rec.TournamentID, &rec.UserID,
			&rec.Symbol, &rec.Side,
			&shares, &price, &total, &fee, &net,
			&realized, &realizedPct, &rec.Timestamp); err != nil {
			return nil, err
		}

		rec.Shares, _ = decimal.NewFromString(shares)
		rec.Price, _ = decimal.NewFromString(price)
		rec.TotalAmount, _ = decimal.NewFromString(total)
		rec.Fee, _ = decimal.NewFromString(fee)
		rec.NetAmount, _ = decimal.NewFromString(net)
		if realized != nil {
			v, _ := decimal.NewFromString(*realized)
			rec.RealizedGainLoss = &v
		}
		if realizedPct != nil {
			v, _ := decimal.NewFromString(*realizedPct)
			rec.RealizedGainLossPct = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountTradesSince(ctx context.Context, portfolioID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trading_records
		 WHERE portfolio_id = $1 AND timestamp >= $2`, portfolioID, since).
		Scan(&count)
	return count, err
}

func (s *PostgresStore) ReplaceRanking(ctx context.Context, tournamentID string, entries []model.RankingEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM rankings WHERE tournament_id = $1`, tournamentID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rankings
			   (tournament_id, user_id, portfolio_id, current_rank, previous_rank, metric_value, as_of)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
			e.TournamentID, e.UserID, e.PortfolioID,
			e.CurrentRank, e.PreviousRank, e.MetricValue.String(), e.AsOf); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetRanking(ctx context.Context, tournamentID string) ([]model.RankingEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tournament_id, user_id, portfolio_id, current_rank, previous_rank,
		        metric_value::TEXT, as_of
		 FROM rankings WHERE tournament_id = $1 ORDER BY current_rank`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RankingEntry
	for rows.Next() {
		var e model.RankingEntry
		var metric string
		if err := rows.Scan(&e.TournamentID, &e.UserID, &e.PortfolioID,
			&e.CurrentRank, &e.PreviousRank, &metric, &e.AsOf); err != nil {
			return nil, err
		}
		e.MetricValue, _ = decimal.NewFromString(metric)
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalPortfolioDocs(p *model.Portfolio) (holdings, history []byte, err error) {
	holdings, err = json.Marshal(p.Holdings)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal holdings: %w", err)
	}
	history, err = json.Marshal(p.DailyValueHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal value history: %w", err)
	}
	return holdings, history, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueViolation detects PostgreSQL unique-constraint errors (23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
