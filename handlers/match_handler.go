package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/services"
)

type MatchHandler struct {
	matchService services.MatchService
	scoreService services.ScoreService
	escrow       services.EscrowService
}

func NewMatchHandler(ms services.MatchService, ss services.ScoreService, es services.EscrowService) *MatchHandler {
	return &MatchHandler{matchService: ms, scoreService: ss, escrow: es}
}

type createMatchInput struct {
	GameType models.GameType `json:"game_type"`
}

type setStakeInput struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type submitScoreInput struct {
	Value *float64 `json:"value"`
}

func (h *MatchHandler) respondMatch(w http.ResponseWriter, r *http.Request, status int, match *models.MatchRecord) {
	if err := writeJSON(w, status, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CreateMatch godoc
// @Summary Создать матч
// @Tags matches
// @Description Создает матч в фазе waiting со ставкой по умолчанию и возвращает код для соперника.
// @Accept json
// @Produce json
// @Param input body createMatchInput true "Тип игры"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /matches [post]
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}
	var input createMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.CreateMatch(r.Context(), participantID, input.GameType)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respondMatch(w, r, http.StatusCreated, match)
}

// GetMatch godoc
// @Summary Получить матч по коду
// @Tags matches
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "invalid or already started"
// @Security BearerAuth
// @Router /matches/{code} [get]
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.matchService.GetMatch(r.Context(), matchCodeFromURL(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respondMatch(w, r, http.StatusOK, match)
}

// SetStake godoc
// @Summary Изменить ставку
// @Tags matches
// @Description Только инициатор и только пока к матчу никто не присоединился.
// @Accept json
// @Produce json
// @Param code path string true "Код матча"
// @Param input body setStakeInput true "Ставка"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{code}/stake [put]
func (h *MatchHandler) SetStake(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}
	var input setStakeInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.SetStake(r.Context(), matchCodeFromURL(r), participantID, input.Amount, input.Currency)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respondMatch(w, r, http.StatusOK, match)
}

// JoinMatch godoc
// @Summary Присоединиться к матчу
// @Tags matches
// @Description Списывает ставки обоих участников и переводит матч в connecting.
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Failure 402 {object} map[string]string "Недостаточно средств"
// @Failure 404 {object} map[string]string "invalid or already started"
// @Security BearerAuth
// @Router /matches/{code}/join [post]
func (h *MatchHandler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.matchService.JoinMatch)
}

// MarkReady godoc
// @Summary Подтвердить готовность
// @Tags matches
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /matches/{code}/ready [post]
func (h *MatchHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.matchService.MarkReady)
}

// StartCountdown godoc
// @Summary Начать обратный отсчет
// @Tags matches
// @Description Только инициатор, после готовности обоих.
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /matches/{code}/countdown [post]
func (h *MatchHandler) StartCountdown(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.matchService.AdvanceToCountdown)
}

// StartPlay godoc
// @Summary Начать игру
// @Tags matches
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /matches/{code}/start [post]
func (h *MatchHandler) StartPlay(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.matchService.AdvanceToPlaying)
}

// CancelMatch godoc
// @Summary Отменить матч
// @Tags matches
// @Description Доступно в waiting и connecting; списанные ставки возвращаются.
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /matches/{code}/cancel [post]
func (h *MatchHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	h.participantAction(w, r, h.matchService.CancelMatch)
}

// SubmitScore godoc
// @Summary Отправить результат
// @Tags matches
// @Accept json
// @Produce json
// @Param code path string true "Код матча"
// @Param input body submitScoreInput true "Результат"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /matches/{code}/scores [post]
func (h *MatchHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}
	var input submitScoreInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Value == nil {
		badRequestResponse(w, r, errors.New("value is required"))
		return
	}

	match, err := h.scoreService.SubmitScore(r.Context(), matchCodeFromURL(r), participantID, *input.Value)
	if errors.Is(err, services.ErrScoreAlreadySubmitted) && match != nil {
		// Повторная отправка не считается ошибкой.
		h.respondMatch(w, r, http.StatusOK, match)
		return
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respondMatch(w, r, http.StatusOK, match)
}

// SettleMatch godoc
// @Summary Рассчитать матч
// @Tags matches
// @Description Идемпотентно: повторный вызов возвращает уже рассчитанный матч.
// @Produce json
// @Param code path string true "Код матча"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Результаты еще не получены"
// @Security BearerAuth
// @Router /matches/{code}/settle [post]
func (h *MatchHandler) SettleMatch(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}
	code := matchCodeFromURL(r)
	match, err := h.matchService.GetMatch(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if _, ok := match.RoleOf(participantID); !ok {
		mapServiceErrorToHTTP(w, r, services.ErrNotParticipant)
		return
	}

	settled, err := h.escrow.SettleMatch(r.Context(), code)
	if errors.Is(err, services.ErrSettlementConflict) && settled != nil {
		h.respondMatch(w, r, http.StatusOK, settled)
		return
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respondMatch(w, r, http.StatusOK, settled)
}

type participantMatchAction func(ctx context.Context, code, participantID string) (*models.MatchRecord, error)

// participantAction runs an action on behalf of the authenticated participant.
func (h *MatchHandler) participantAction(w http.ResponseWriter, r *http.Request, action participantMatchAction) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}

	match, err := action(r.Context(), matchCodeFromURL(r), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respondMatch(w, r, http.StatusOK, match)
}
