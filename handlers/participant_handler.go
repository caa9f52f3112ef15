package handlers

import (
	"net/http"
	"strings"

	"github.com/Dosada05/wager-match/services"
	"github.com/go-chi/chi/v5"
)

type ParticipantHandler struct {
	participantService services.ParticipantService
}

func NewParticipantHandler(ps services.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantService: ps}
}

type depositInput struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Me godoc
// @Summary Текущий участник
// @Tags participants
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /me [get]
func (h *ParticipantHandler) Me(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}

	participant, err := h.participantService.GetParticipant(r.Context(), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Wallet godoc
// @Summary Баланс кошелька
// @Tags wallet
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /me/wallet [get]
func (h *ParticipantHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	participantID, ok := currentParticipant(w, r)
	if !ok {
		return
	}

	wallet, err := h.participantService.GetWallet(r.Context(), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"wallet": wallet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Deposit godoc
// @Summary Пополнение кошелька участника
// @Tags operator
// @Description Только для оператора платформы. Повтор с тем же idempotency_key не зачисляет сумму повторно.
// @Accept json
// @Produce json
// @Param participantID path string true "ID участника"
// @Param input body depositInput true "Сумма в минимальных единицах"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security OperatorKey
// @Router /operator/participants/{participantID}/deposits [post]
func (h *ParticipantHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	participantID := strings.TrimSpace(chi.URLParam(r, "participantID"))

	var input depositInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	wallet, err := h.participantService.Deposit(r.Context(), participantID, input.Amount, input.IdempotencyKey)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"wallet": wallet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
