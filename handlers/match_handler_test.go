package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/wager-match/games"
	"github.com/Dosada05/wager-match/middleware"
	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/Dosada05/wager-match/services"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOperatorKey = "operator-key"

type apiFixture struct {
	router chi.Router
	ledger repositories.WalletLedger
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewRealClock()

	matches := repositories.NewMemoryMatchRepository(clock)
	ledger := repositories.NewMemoryWalletLedger(clock)
	participants := repositories.NewMemoryParticipantRepository()
	_, err := ledger.CreateAccount(context.Background(), "platform", "COIN")
	require.NoError(t, err)

	registry := games.DefaultRegistry()
	codes, err := services.NewCodeGenerator(services.DefaultCodeLength)
	require.NoError(t, err)
	escrow := services.NewEscrowService(services.EscrowServiceDeps{
		Matches: matches, Ledger: ledger, Participants: participants, Games: registry,
		PlatformAccountID: "platform", Clock: clock, Logger: logger,
	})
	matchSvc := services.NewMatchService(matches, ledger, participants, escrow, registry, codes,
		services.MatchSettings{DefaultStake: 100, DefaultCurrency: "COIN", PayoutFraction: decimal.RequireFromString("0.8")},
		logger)
	scoreSvc := services.NewScoreService(matches, escrow, logger)
	participantSvc := services.NewParticipantService(participants, ledger, "COIN", logger)

	tokens := middleware.NewTokenIssuer("test-secret", time.Hour)
	auth := NewAuthHandler(participantSvc, tokens)
	me := NewParticipantHandler(participantSvc)
	mh := NewMatchHandler(matchSvc, scoreSvc, escrow)

	r := chi.NewRouter()
	r.Post("/auth/register", auth.Register)
	r.Post("/auth/login", auth.Login)
	r.Route("/operator", func(r chi.Router) {
		r.Use(middleware.RequireOperatorKey(testOperatorKey))
		r.Post("/participants/{participantID}/deposits", me.Deposit)
	})
	r.Group(func(r chi.Router) {
		r.Use(tokens.Authenticate)
		r.Get("/me", me.Me)
		r.Get("/me/wallet", me.Wallet)
		r.Post("/matches", mh.CreateMatch)
		r.Get("/matches/{code}", mh.GetMatch)
		r.Put("/matches/{code}/stake", mh.SetStake)
		r.Post("/matches/{code}/join", mh.JoinMatch)
		r.Post("/matches/{code}/ready", mh.MarkReady)
		r.Post("/matches/{code}/countdown", mh.StartCountdown)
		r.Post("/matches/{code}/start", mh.StartPlay)
		r.Post("/matches/{code}/cancel", mh.CancelMatch)
		r.Post("/matches/{code}/scores", mh.SubmitScore)
		r.Post("/matches/{code}/settle", mh.SettleMatch)
	})
	return &apiFixture{router: r, ledger: ledger}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return f.doWithHeaders(t, method, path, token, nil, body)
}

func (f *apiFixture) doWithHeaders(t *testing.T, method, path, token string, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// register returns the new participant's id and token.
func (f *apiFixture) register(t *testing.T, name string, deposit int64) (string, string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"display_name": name, "secret": "secret-" + name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Participant models.Participant `json:"participant"`
		Token       string             `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	if deposit > 0 {
		rec = f.deposit(t, resp.Participant.ID, testOperatorKey, deposit, "initial")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return resp.Participant.ID, resp.Token
}

func (f *apiFixture) deposit(t *testing.T, participantID, operatorKey string, amount int64, key string) *httptest.ResponseRecorder {
	t.Helper()
	var headers map[string]string
	if operatorKey != "" {
		headers = map[string]string{middleware.OperatorKeyHeader: operatorKey}
	}
	return f.doWithHeaders(t, http.MethodPost, "/operator/participants/"+participantID+"/deposits", "", headers,
		map[string]interface{}{"amount": amount, "idempotency_key": key})
}

func decodeMatch(t *testing.T, rec *httptest.ResponseRecorder) models.MatchRecord {
	t.Helper()
	var resp struct {
		Match models.MatchRecord `json:"match"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Match
}

func TestMatchAPI_FullMatch(t *testing.T) {
	f := newAPIFixture(t)
	aliceID, alice := f.register(t, "alice", 5000)
	bobID, bob := f.register(t, "bob", 5000)

	rec := f.do(t, http.MethodPost, "/matches", alice, map[string]string{"game_type": "reaction"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code := decodeMatch(t, rec).Code

	rec = f.do(t, http.MethodPut, "/matches/"+code+"/stake", alice, map[string]interface{}{"amount": 1000, "currency": "COIN"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/matches/"+code+"/join", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	joined := decodeMatch(t, rec)
	assert.Equal(t, models.PhaseConnecting, joined.Phase)
	assert.Equal(t, int64(2000), *joined.Pot)

	for _, step := range []struct{ path, token string }{
		{"/ready", alice}, {"/ready", bob}, {"/countdown", alice}, {"/start", alice},
	} {
		rec = f.do(t, http.MethodPost, "/matches/"+code+step.path, step.token, nil)
		require.Equal(t, http.StatusOK, rec.Code, step.path+": "+rec.Body.String())
	}
	assert.Equal(t, models.PhasePlaying, decodeMatch(t, rec).Phase)

	rec = f.do(t, http.MethodPost, "/matches/"+code+"/scores", alice, map[string]float64{"value": 310})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/matches/"+code+"/scores", bob, map[string]float64{"value": 290})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	final := decodeMatch(t, rec)
	assert.Equal(t, models.PhaseCompleted, final.Phase)
	require.NotNil(t, final.WinnerID)
	assert.Equal(t, bobID, *final.WinnerID)

	// Повторная отправка и повторный расчет безопасны.
	rec = f.do(t, http.MethodPost, "/matches/"+code+"/scores", alice, map[string]float64{"value": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/matches/"+code+"/settle", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SettlementPaid, decodeMatch(t, rec).SettlementState)

	rec = f.do(t, http.MethodGet, "/me/wallet", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wallet struct {
		Wallet models.WalletAccount `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.Equal(t, int64(5600), wallet.Wallet.Balance)

	rec = f.do(t, http.MethodGet, "/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), aliceID)
}

func TestMatchAPI_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	_, alice := f.register(t, "alice", 5000)
	_, bob := f.register(t, "bob", 500)
	_, carol := f.register(t, "carol", 0)

	rec := f.do(t, http.MethodGet, "/matches/12345678", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/matches/12345678", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or already started")

	rec = f.do(t, http.MethodPost, "/matches", alice, map[string]string{"game_type": "chess"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/matches", alice, map[string]string{"game_type": "reaction", "extra": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/matches", alice, map[string]string{"game_type": "reaction"})
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decodeMatch(t, rec).Code

	rec = f.do(t, http.MethodPut, "/matches/"+code+"/stake", bob, map[string]interface{}{"amount": 1000, "currency": "COIN"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPut, "/matches/"+code+"/stake", alice, map[string]interface{}{"amount": 1000, "currency": "COIN"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/matches/"+code+"/join", bob, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	rec = f.do(t, http.MethodPost, "/matches/"+code+"/join", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/matches/"+code+"/scores", alice, map[string]float64{"value": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/matches/"+code+"/scores", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/matches/"+code+"/settle", carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/matches/"+code+"/settle", alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/matches/"+code+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PhaseAbandoned, decodeMatch(t, rec).Phase)
}

func TestAuthAPI_Login(t *testing.T) {
	f := newAPIFixture(t)
	id, _ := f.register(t, "dave", 0)

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"participant_id": id, "secret": "secret-dave"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"participant_id": id, "secret": "wrong-secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"participant_id": id})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"display_name": "eve", "secret": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperatorAPI_Deposit(t *testing.T) {
	f := newAPIFixture(t)
	aliceID, aliceToken := f.register(t, "alice", 0)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusForbidden},
		{"wrong key", "guess", http.StatusForbidden},
		{"operator key", testOperatorKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.deposit(t, aliceID, tt.key, 500, "top-up")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := f.doWithHeaders(t, http.MethodPost, "/operator/participants/"+aliceID+"/deposits", aliceToken, nil,
		map[string]interface{}{"amount": 500, "idempotency_key": "self-service"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "a participant token does not open operator routes")

	rec = f.deposit(t, aliceID, testOperatorKey, 500, "top-up")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/me/wallet", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Wallet models.WalletAccount `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(500), resp.Wallet.Balance, "replayed key credits once")

	rec = f.deposit(t, "nobody", testOperatorKey, 500, "top-up")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
