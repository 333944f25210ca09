package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"cryptodesk/internal/application/port"
	"cryptodesk/internal/domain"
	"cryptodesk/internal/domain/model"
	"cryptodesk/internal/domain/service"
	"cryptodesk/internal/infrastructure/exchange/kraken"
	wshub "cryptodesk/internal/infrastructure/websocket"
)

// PairLookup resolves pair names against venue reference data.
type PairLookup interface {
	Known(ctx context.Context, pair string) (bool, error)
}

// TradeHistory reads back persisted transactions. Nil when no storage
// backend keeps them; the handler then serves the in-memory log.
type TradeHistory interface {
	ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
}

type Params struct {
	Addr    string
	Ledger  *service.Ledger
	Feed    port.Feed
	Book    *domain.PriceBook
	Hub     *wshub.Hub
	Pairs   PairLookup
	Repo    port.Repository
	History TradeHistory
}

// Server exposes the trading ledger and the live price data over HTTP,
// plus the subscriber websocket endpoint.
type Server struct {
	p Params
}

func NewServer(p Params) *Server {
	return &Server{p: p}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	srv := &http.Server{
		Addr:    s.p.Addr,
		Handler: logMiddleware(s.routes()),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	log.Info().Str("addr", s.p.Addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trade", s.tradeHandler)
	mux.HandleFunc("/api/reset", s.resetHandler)
	mux.HandleFunc("/api/initial-data", s.initialDataHandler)
	mux.HandleFunc("/api/crypto-data", s.cryptoDataHandler)
	mux.HandleFunc("/api/subscribe", s.subscribeHandler)
	mux.HandleFunc("/api/transactions", s.transactionsHandler)
	mux.HandleFunc("/ws", s.wsHandler)
	return mux
}

type tradeRequest struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

func (s *Server) tradeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := s.p.Ledger.ExecuteTrade(req.Type, FormatPair(req.Symbol), req.Amount, req.Price)
	if err != nil {
		log.Warn().Err(err).Str("type", req.Type).Str("symbol", req.Symbol).Msg("trade rejected")
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s.archiveTrade(r.Context(), snap)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.p.Ledger.Reset()
	s.archiveSnapshot(r.Context(), snap)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) initialDataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.p.Ledger.State())
}

type priceEntry struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

func (s *Server) cryptoDataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.p.Book.Snapshot()
	prices := make([]priceEntry, 0, len(snap))
	for pair, q := range snap {
		prices = append(prices, priceEntry{Symbol: pair, Price: q.Price, Change24h: q.Change24h})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prices": prices})
}

const defaultHistoryLimit = 100

// transactionsHandler serves the persisted trade log, oldest first.
// Without a storage backend it falls back to the ledger's in-memory
// log, so the endpoint works in every configuration.
func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if s.p.History != nil {
		txs, err := s.p.History.ListTransactions(r.Context(), limit)
		if err == nil {
			if txs == nil {
				txs = []model.Transaction{}
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
			return
		}
		log.Error().Err(err).Msg("transaction history read failed, serving in-memory log")
	}

	txs := s.p.Ledger.State().Transactions
	if len(txs) > limit {
		txs = txs[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

type subscribeApiRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req subscribeApiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol == "" {
		writeMessage(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	pair := FormatPair(req.Symbol)
	if !ValidPairFormat(pair) {
		writeMessage(w, http.StatusBadRequest, "Invalid symbol format. Expected format: XXX/YYY")
		return
	}

	if !s.p.Feed.Connected() {
		writeMessage(w, http.StatusServiceUnavailable, "WebSocket service is not available. Please try again later.")
		return
	}

	if s.p.Feed.Subscribed(pair) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Already subscribed to " + pair,
			"symbol":  pair,
		})
		return
	}

	// Reference data failure degrades to the format check above.
	if known, err := s.p.Pairs.Known(r.Context(), pair); err != nil {
		log.Error().Err(err).Str("pair", pair).Msg("pair validation fell back to format check")
	} else if !known {
		writeMessage(w, http.StatusBadRequest, "Currency pair '"+pair+"' is not available on Kraken")
		return
	}

	if err := s.p.Feed.Subscribe(pair); err != nil {
		if errors.Is(err, kraken.ErrNotConnected) {
			writeMessage(w, http.StatusServiceUnavailable, "WebSocket service is not available: "+err.Error())
			return
		}
		log.Error().Err(err).Str("pair", pair).Msg("subscribe failed")
		writeMessage(w, http.StatusInternalServerError, "Error subscribing to pair: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Successfully subscribed to " + pair,
		"symbol":  pair,
	})
}

// archiveTrade persists the newest transaction and the resulting
// snapshot. Best-effort: failures are logged, the trade already
// happened.
func (s *Server) archiveTrade(ctx context.Context, snap model.AccountSnapshot) {
	if len(snap.Transactions) > 0 {
		tx := snap.Transactions[len(snap.Transactions)-1]
		if err := s.p.Repo.InsertTransaction(ctx, tx); err != nil {
			log.Error().Err(err).Msg("persist transaction failed")
		}
	}
	s.archiveSnapshot(ctx, snap)
}

func (s *Server) archiveSnapshot(ctx context.Context, snap model.AccountSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.p.Repo.InsertAccountSnapshot(ctx, time.Now().UnixMilli(), string(payload)); err != nil {
		log.Error().Err(err).Msg("persist account snapshot failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
