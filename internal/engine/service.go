// Package engine provides the HTTP handlers for the tournament engine:
// tournament administration, enrollment, trade submission, portfolio and
// leaderboard queries, and chart series.
//
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/ledger"
	"github.com/arenax/tournament-engine/internal/lifecycle"
	"github.com/arenax/tournament-engine/internal/metrics"
	"github.com/arenax/tournament-engine/internal/model"
	"github.com/arenax/tournament-engine/internal/pricefeed"
	"github.com/arenax/tournament-engine/internal/ranking"
	"github.com/arenax/tournament-engine/internal/store"
	"github.com/arenax/tournament-engine/internal/valuation"
)

// Service handles the engine's HTTP surface. Collaborators are injected;
// no package-level singletons.
type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	ranking *ranking.Service
	clock   clock.Clock
	wsHub   *WSHub // optional; nil disables broadcasts
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, led *ledger.Ledger, rank *ranking.Service, clk clock.Clock, hub *WSHub) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		store:   st,
		ledger:  led,
		ranking: rank,
		clock:   clk,
		wsHub:   hub,
	}
}

// Routes mounts all API handlers on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/tournaments", s.CreateTournament)
	r.Get("/tournaments", s.ListTournaments)
	r.Get("/tournaments/{tournamentID}", s.GetTournament)
	r.Get("/tournaments/{tournamentID}/status", s.GetTournamentStatus)
	r.Post("/tournaments/{tournamentID}/join", s.JoinTournament)
	r.Get("/tournaments/{tournamentID}/ranking", s.GetRanking)

	r.Post("/trade", s.SubmitTrade)

	r.Get("/portfolios/{portfolioID}", s.GetPortfolio)
	r.Get("/portfolios/{portfolioID}/trades", s.GetTrades)
	r.Get("/portfolios/{portfolioID}/chart", s.GetChartSeries)
}

// --- Request/Response types ---

// CreateTournamentRequest is the JSON body for tournament creation.
type CreateTournamentRequest struct {
	Name             string                `json:"name"`
	Description      string                `json:"description"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          time.Time             `json:"end_time"`
	EnrollOpen       *time.Time            `json:"enroll_open,omitempty"`
	SettlementWindow int64                 `json:"settlement_window_secs,omitempty"`
	MaxParticipants  int                   `json:"max_participants"`
	AllowEarlyJoin   bool                  `json:"allow_early_join"`
	EntryCapital     decimal.Decimal       `json:"entry_capital"`
	FeeTokens        decimal.Decimal       `json:"fee_tokens"`
	ReturnMetric     string                `json:"return_metric"`
	ResetMode        string                `json:"reset_mode"`
	Rules            model.TournamentRules `json:"rules"`
}

// TournamentResponse decorates a tournament with its derived status.
type TournamentResponse struct {
	*model.Tournament
	Status        model.TournamentStatus `json:"status"`
	TimeRemaining string                 `json:"time_remaining"`
}

// StatusResponse is the countdown view of one tournament.
type StatusResponse struct {
	TournamentID       string                 `json:"tournament_id"`
	Status             model.TournamentStatus `json:"status"`
	TimeRemaining      string                 `json:"time_remaining"`
	AtTransitionPoint  bool                   `json:"at_transition_point"`
	TransitionReminder string                 `json:"transition_reminder,omitempty"`
	AsOf               time.Time              `json:"as_of"`
}

// JoinRequest is the JSON body for POST /tournaments/{id}/join.
type JoinRequest struct {
	UserID string `json:"user_id"`
}

// TradeRequest is the JSON body for POST /trade. Price is resolved
// server-side from the price feed at execution time.
type TradeRequest struct {
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Side        model.TradeSide `json:"side"`
	Shares      decimal.Decimal `json:"shares"`
}

// TradeResponse is returned from POST /trade.
type TradeResponse struct {
	Trade     *model.TradingRecord `json:"trade"`
	Portfolio *PortfolioResponse   `json:"portfolio"`
}

// HoldingView is a holding decorated with derived valuation fields.
type HoldingView struct {
	*model.Holding
	TotalValue           decimal.Decimal `json:"total_value"`
	UnrealizedGainLoss   decimal.Decimal `json:"unrealized_gain_loss"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage"`
}

// PortfolioResponse is the full portfolio view: raw state plus derived
// metrics.
type PortfolioResponse struct {
	*model.Portfolio
	HoldingViews []HoldingView     `json:"holding_views"`
	Metrics      valuation.Metrics `json:"metrics"`
}

// RankingEntryView decorates a ranking entry with its movement delta.
type RankingEntryView struct {
	model.RankingEntry
	Delta model.RankDelta `json:"delta"`
}

// --- Tournament handlers ---

// CreateTournament handles POST /api/v1/tournaments.
func (s *Service) CreateTournament(w http.ResponseWriter, r *http.Request) {
	var req CreateTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := s.clock.Now()
	t := &model.Tournament{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Description:      req.Description,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		SettlementWindow: time.Duration(req.SettlementWindow) * time.Second,
		MaxParticipants:  req.MaxParticipants,
		AllowEarlyJoin:   req.AllowEarlyJoin,
		EntryCapital:     req.EntryCapital,
		FeeTokens:        req.FeeTokens,
		ReturnMetric:     req.ReturnMetric,
		ResetMode:        req.ResetMode,
		Rules:            req.Rules,
		CreatedAt:        now,
	}
	if req.EnrollOpen != nil {
		t.EnrollOpen = req.EnrollOpen.UTC()
	}

	if err := lifecycle.Validate(t); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.CreateTournament(r.Context(), t); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	slog.Info("tournament created",
		"id", t.ID,
		"name", t.Name,
		"start", t.StartTime,
		"end", t.EndTime,
		"entry_capital", t.EntryCapital.String(),
	)

	writeJSON(w, http.StatusCreated, s.tournamentResponse(t))
}

// ListTournaments handles GET /api/v1/tournaments.
func (s *Service) ListTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := s.store.ListTournaments(r.Context())
	if err != nil {
		writeError(w, "failed to list tournaments", http.StatusInternalServerError)
		return
	}

	out := make([]TournamentResponse, 0, len(tournaments))
	for i := range tournaments {
		out = append(out, s.tournamentResponse(&tournaments[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTournament handles GET /api/v1/tournaments/{tournamentID}.
func (s *Service) GetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		writeError(w, "tournament not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.tournamentResponse(t))
}

// GetTournamentStatus handles GET /api/v1/tournaments/{tournamentID}/status.
// Status is derived fresh on every query; nothing is cached across calls.
func (s *Service) GetTournamentStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		writeError(w, "tournament not found", http.StatusNotFound)
		return
	}

	now := s.clock.Now()
	writeJSON(w, http.StatusOK, StatusResponse{
		TournamentID:       t.ID,
		Status:             lifecycle.Status(t, now),
		TimeRemaining:      lifecycle.PreciseTimeRemaining(t, now),
		AtTransitionPoint:  lifecycle.AtTransitionPoint(t, now),
		TransitionReminder: lifecycle.TransitionReminder(t, now),
		AsOf:               now,
	})
}

// JoinTournament handles POST /api/v1/tournaments/{tournamentID}/join.
func (s *Service) JoinTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.Join(r.Context(), tournamentID, req.UserID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	metrics.ParticipantsJoined.Inc()

	writeJSON(w, http.StatusCreated, s.portfolioResponse(p))
}

// --- Trade handlers ---

// SubmitTrade handles POST /api/v1/trade. On success it recomputes the
// tournament leaderboard and broadcasts the trade.
func (s *Service) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PortfolioID == "" {
		writeError(w, "portfolio_id is required", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	rec, err := s.ledger.ExecuteTrade(r.Context(), ledger.TradeRequest{
		PortfolioID: req.PortfolioID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Shares:      req.Shares,
	})
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		if errors.Is(err, pricefeed.ErrQuoteUnavailable) {
			metrics.PriceFeedFailures.Inc()
		}
		writeError(w, err.Error(), statusFor(err))
		return
	}
	metrics.TradesTotal.WithLabelValues(string(rec.Side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(rec.Side)).Observe(time.Since(start).Seconds())

	// Trigger policy: re-rank on every completed trade.
	if _, err := s.ranking.Recompute(r.Context(), rec.TournamentID); err != nil {
		slog.Warn("post-trade ranking recompute failed", "tournament", rec.TournamentID, "err", err)
	} else {
		metrics.RankingRecomputes.Inc()
	}

	p, err := s.store.GetPortfolio(r.Context(), rec.PortfolioID)
	if err != nil {
		writeError(w, "trade committed but portfolio read failed", http.StatusInternalServerError)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         EventTradeExecuted,
			TournamentID: rec.TournamentID,
			PortfolioID:  rec.PortfolioID,
			Symbol:       rec.Symbol,
			Side:         string(rec.Side),
			Shares:       rec.Shares.String(),
			Price:        rec.Price.String(),
		})
		s.wsHub.Broadcast(WSMessage{
			Type:         EventRankingUpdated,
			TournamentID: rec.TournamentID,
		})
	}

	resp := s.portfolioResponse(p)
	writeJSON(w, http.StatusOK, TradeResponse{Trade: rec, Portfolio: &resp})
}

// --- Portfolio handlers ---

// GetPortfolio handles GET /api/v1/portfolios/{portfolioID}.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPortfolio(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.portfolioResponse(p))
}

// GetTrades handles GET /api/v1/portfolios/{portfolioID}/trades.
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.GetTradingRecords(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.TradingRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetChartSeries handles GET /api/v1/portfolios/{portfolioID}/chart.
// Query params: range (week|month|quarter|year|all), metric
// (value|return_pct|daily_change|trade_count).
func (s *Service) GetChartSeries(w http.ResponseWriter, r *http.Request) {
	rng, err := valuation.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	metric, err := valuation.ParseChartMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.store.GetPortfolio(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}

	var records []model.TradingRecord
	if metric == valuation.MetricTradeCount {
		records, err = s.store.GetTradingRecords(r.Context(), p.ID)
		if err != nil {
			writeError(w, "failed to load trades", http.StatusInternalServerError)
			return
		}
	}

	points := valuation.ChartSeries(p, records, rng, metric, s.clock.Now())
	writeJSON(w, http.StatusOK, points)
}

// --- Ranking handlers ---

// GetRanking handles GET /api/v1/tournaments/{tournamentID}/ranking.
func (s *Service) GetRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ranking.Get(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		writeError(w, "failed to load ranking", http.StatusInternalServerError)
		return
	}

	out := make([]RankingEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, RankingEntryView{RankingEntry: e, Delta: e.Delta()})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Helpers ---

func (s *Service) tournamentResponse(t *model.Tournament) TournamentResponse {
	now := s.clock.Now()
	return TournamentResponse{
		Tournament:    t,
		Status:        lifecycle.Status(t, now),
		TimeRemaining: lifecycle.PreciseTimeRemaining(t, now),
	}
}

func (s *Service) portfolioResponse(p *model.Portfolio) PortfolioResponse {
	assets := p.TotalAssets()
	views := make([]HoldingView, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		view := HoldingView{
			Holding:            h,
			TotalValue:         h.TotalValue(),
			UnrealizedGainLoss: h.UnrealizedGainLoss(),
		}
		if assets.IsPositive() {
			view.AllocationPercentage = h.TotalValue().Div(assets).Mul(decimal.NewFromInt(100)).Round(2)
		}
		views = append(views, view)
	}

	return PortfolioResponse{
		Portfolio:    p,
		HoldingViews: views,
		Metrics:      valuation.Compute(p),
	}
}

// statusFor maps engine errors to HTTP status codes: validation 400,
// business-rule rejections 409, missing records 404, transient
// infrastructure 502.
func statusFor(err error) int {
	switch {
	case ledger.IsValidationError(err):
		return http.StatusBadRequest
	case ledger.IsBusinessError(err):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, pricefeed.ErrUnknownSymbol):
		return http.StatusBadRequest
	case errors.Is(err, pricefeed.ErrQuoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// rejectionReason labels a failed trade for metrics without exploding
// cardinality.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrTradingClosed):
		return "trading_closed"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ledger.ErrPositionLimitExceeded):
		return "position_limit"
	case errors.Is(err, ledger.ErrDailyTradeLimitExceeded):
		return "daily_trade_limit"
	case errors.Is(err, ledger.ErrRiskLimitExceeded):
		return "risk_limit"
	case errors.Is(err, ledger.ErrInstrumentNotAllowed):
		return "instrument_not_allowed"
	case ledger.IsValidationError(err):
		return "validation"
	case errors.Is(err, pricefeed.ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
