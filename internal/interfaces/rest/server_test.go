package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptodesk/internal/domain"
	"cryptodesk/internal/domain/model"
	"cryptodesk/internal/domain/service"
	wshub "cryptodesk/internal/infrastructure/websocket"
)

type stubFeed struct {
	connected  bool
	active     map[string]bool
	subscribed []string
	err        error
}

func (f *stubFeed) Run(ctx context.Context)          {}
func (f *stubFeed) Events() <-chan model.TickerEvent { return nil }
func (f *stubFeed) Subscribed(pair string) bool      { return f.active[pair] }
func (f *stubFeed) Connected() bool                  { return f.connected }

func (f *stubFeed) Subscribe(pairs ...string) error {
	if f.err != nil {
		return f.err
	}
	f.subscribed = append(f.subscribed, pairs...)
	return nil
}

type stubPairs struct {
	known bool
	err   error
}

func (p *stubPairs) Known(ctx context.Context, pair string) (bool, error) {
	return p.known, p.err
}

type recordingRepo struct {
	transactions []model.Transaction
	snapshots    int
}

func (r *recordingRepo) UpsertLatestPrice(ctx context.Context, pair string, price, change24h float64, ts int64) error {
	return nil
}

func (r *recordingRepo) InsertTransaction(ctx context.Context, tx model.Transaction) error {
	r.transactions = append(r.transactions, tx)
	return nil
}

func (r *recordingRepo) InsertAccountSnapshot(ctx context.Context, ts int64, payload string) error {
	r.snapshots++
	return nil
}

func (r *recordingRepo) Close() error { return nil }

type testEnv struct {
	server *Server
	feed   *stubFeed
	pairs  *stubPairs
	repo   *recordingRepo
	book   *domain.PriceBook
	hub    *wshub.Hub
	ledger *service.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	book := domain.NewPriceBook()
	env := &testEnv{
		feed:   &stubFeed{connected: true, active: map[string]bool{}},
		pairs:  &stubPairs{known: true},
		repo:   &recordingRepo{},
		book:   book,
		hub:    wshub.NewHub(book),
		ledger: service.NewLedger(10000),
	}
	env.server = NewServer(Params{
		Addr:   ":0",
		Ledger: env.ledger,
		Feed:   env.feed,
		Book:   book,
		Hub:    env.hub,
		Pairs:  env.pairs,
		Repo:   env.repo,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	e.server.routes().ServeHTTP(w, r)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) model.AccountSnapshot {
	t.Helper()
	var snap model.AccountSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot failed: %v", err)
	}
	return snap
}

func TestTradeBuyUpdatesAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/trade",
		`{"type":"BUY","symbol":"btc","amount":1,"price":5000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	snap := decodeSnapshot(t, w)
	if snap.Balance != 5000 {
		t.Errorf("expected balance 5000, got %v", snap.Balance)
	}
	if snap.Portfolio["BTC/USD"] != 1 {
		t.Errorf("expected 1 BTC/USD held, got %v", snap.Portfolio)
	}
	if len(snap.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(snap.Transactions))
	}

	if len(env.repo.transactions) != 1 {
		t.Errorf("expected the trade persisted, got %d", len(env.repo.transactions))
	}
	if env.repo.snapshots != 1 {
		t.Errorf("expected 1 snapshot archived, got %d", env.repo.snapshots)
	}
}

func TestTradeRejectionReturnsMessage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/trade",
		`{"type":"SELL","symbol":"BTC/USD","amount":1,"price":5000}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !strings.Contains(resp["message"], "insufficient cryptocurrency balance") {
		t.Errorf("unexpected message: %q", resp["message"])
	}

	if len(env.repo.transactions) != 0 || env.repo.snapshots != 0 {
		t.Error("rejected trade must not be persisted")
	}
}

func TestTradeRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/trade", `{"type":`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestResetRestoresInitialBalance(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.ledger.ExecuteTrade(model.TradeBuy, "BTC/USD", 1, 4000); err != nil {
		t.Fatalf("seed trade failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	snap := decodeSnapshot(t, w)
	if snap.Balance != 10000 {
		t.Errorf("expected balance restored to 10000, got %v", snap.Balance)
	}
	if len(snap.Portfolio) != 0 || len(snap.Transactions) != 0 {
		t.Errorf("expected empty account after reset, got %+v", snap)
	}
	if env.repo.snapshots != 1 {
		t.Errorf("expected reset snapshot archived, got %d", env.repo.snapshots)
	}
}

func TestInitialDataReturnsAccountState(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/initial-data", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if snap := decodeSnapshot(t, w); snap.Balance != 10000 {
		t.Errorf("expected starting balance, got %v", snap.Balance)
	}
}

func TestCryptoDataListsKnownPrices(t *testing.T) {
	env := newTestEnv(t)
	env.book.Set("XBT/USD", domain.Quote{Price: 50000, Reference: 49000, Change24h: 2.04})
	env.book.Set("ETH/USD", domain.Quote{Price: 3000, Reference: 3100, Change24h: -3.22})

	w := env.do(t, http.MethodGet, "/api/crypto-data", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Prices []priceEntry `json:"prices"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(resp.Prices))
	}

	byPair := map[string]priceEntry{}
	for _, p := range resp.Prices {
		byPair[p.Symbol] = p
	}
	if byPair["XBT/USD"].Price != 50000 {
		t.Errorf("unexpected XBT/USD entry: %+v", byPair["XBT/USD"])
	}
	if byPair["ETH/USD"].Change24h != -3.22 {
		t.Errorf("unexpected ETH/USD entry: %+v", byPair["ETH/USD"])
	}
}

func TestSubscribeHappyPath(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/subscribe", `{"symbol":"doge"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.feed.subscribed) != 1 || env.feed.subscribed[0] != "DOGE/USD" {
		t.Errorf("expected DOGE/USD forwarded to the feed, got %v", env.feed.subscribed)
	}
}

func TestSubscribeRequiresSymbol(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/subscribe", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing symbol, got %d", w.Code)
	}
}

func TestSubscribeRejectsBadFormat(t *testing.T) {
	env := newTestEnv(t)
	// A single letter can never form a valid BASE/QUOTE pair.
	if w := env.do(t, http.MethodPost, "/api/subscribe", `{"symbol":"b"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid format, got %d", w.Code)
	}
	if len(env.feed.subscribed) != 0 {
		t.Errorf("invalid symbol must not reach the feed: %v", env.feed.subscribed)
	}
}

func TestSubscribeWhenDisconnected(t *testing.T) {
	env := newTestEnv(t)
	env.feed.connected = false

	if w := env.do(t, http.MethodPost, "/api/subscribe", `{"symbol":"BTC"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while disconnected, got %d", w.Code)
	}
}

func TestSubscribeAlreadyTracked(t *testing.T) {
	env := newTestEnv(t)
	env.feed.active["BTC/USD"] = true

	w := env.do(t, http.MethodPost, "/api/subscribe", `{"symbol":"BTC"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(env.feed.subscribed) != 0 {
		t.Errorf("duplicate subscribe must not hit the feed: %v", env.feed.subscribed)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !strings.Contains(resp["message"], "Already subscribed") {
		t.Errorf("unexpected message: %q", resp["message"])
	}
}

func TestSubscribeUnknownPair(t *testing.T) {
	env := newTestEnv(t)
	env.pairs.known = false

	if w := env.do(t, http.MethodPost, "/api/subscribe", `{"symbol":"FAKE"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a pair Kraken does not list, got %d", w.Code)
	}
	if len(env.feed.subscribed) != 0 {
		t.Errorf("unknown pair must not reach the feed: %v", env.feed.subscribed)
	}
}

func TestSubscribeLookupFailureFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.pairs.known = false
	env.pairs.err = context.DeadlineExceeded

	// Reference data being down degrades to the format check, so a
	// well-formed pair still goes through.
	w := env.do(t, http.MethodPost, "/api/subscribe", `{"symbol":"SOL"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on lookup failure fallback, got %d", w.Code)
	}
	if len(env.feed.subscribed) != 1 || env.feed.subscribed[0] != "SOL/USD" {
		t.Errorf("expected SOL/USD forwarded, got %v", env.feed.subscribed)
	}
}

type stubHistory struct {
	txs []model.Transaction
	err error
}

func (h *stubHistory) ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.txs) {
		return h.txs[:limit], nil
	}
	return h.txs, nil
}

func decodeTransactions(t *testing.T, w *httptest.ResponseRecorder) []model.Transaction {
	t.Helper()
	var resp struct {
		Transactions []model.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return resp.Transactions
}

func TestTransactionsServedFromHistory(t *testing.T) {
	env := newTestEnv(t)
	env.server.p.History = &stubHistory{txs: []model.Transaction{
		{Type: model.TradeBuy, Symbol: "BTC/USD", Amount: 1, Price: 5000, Total: 5000},
		{Type: model.TradeSell, Symbol: "BTC/USD", Amount: 1, Price: 6000, Total: 6000, ProfitLoss: 1000},
	}}

	w := env.do(t, http.MethodGet, "/api/transactions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	txs := decodeTransactions(t, w)
	if len(txs) != 2 || txs[1].ProfitLoss != 1000 {
		t.Errorf("unexpected history: %+v", txs)
	}

	w = env.do(t, http.MethodGet, "/api/transactions?limit=1", "")
	if txs := decodeTransactions(t, w); len(txs) != 1 {
		t.Errorf("expected limit applied, got %d transactions", len(txs))
	}
}

func TestTransactionsFallBackToLedger(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.ledger.ExecuteTrade(model.TradeBuy, "ETH/USD", 2, 1000); err != nil {
		t.Fatalf("seed trade failed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/transactions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	txs := decodeTransactions(t, w)
	if len(txs) != 1 || txs[0].Symbol != "ETH/USD" {
		t.Errorf("expected the in-memory log, got %+v", txs)
	}
}

func TestTransactionsHistoryErrorFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.server.p.History = &stubHistory{err: context.DeadlineExceeded}
	if _, err := env.ledger.ExecuteTrade(model.TradeBuy, "ETH/USD", 1, 1000); err != nil {
		t.Fatalf("seed trade failed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/transactions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on fallback, got %d", w.Code)
	}
	if txs := decodeTransactions(t, w); len(txs) != 1 {
		t.Errorf("expected the in-memory log on history failure, got %+v", txs)
	}
}

func TestTransactionsRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"?limit=abc", "?limit=0", "?limit=-5"} {
		if w := env.do(t, http.MethodGet, "/api/transactions"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/trade"},
		{http.MethodGet, "/api/reset"},
		{http.MethodPost, "/api/initial-data"},
		{http.MethodPost, "/api/crypto-data"},
		{http.MethodGet, "/api/subscribe"},
		{http.MethodPost, "/api/transactions"},
	}
	for _, tc := range cases {
		if w := env.do(t, tc.method, tc.path, ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tc.method, tc.path, w.Code)
		}
	}
}
