package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/wager-match/middleware"
	"github.com/Dosada05/wager-match/services"
)

type AuthHandler struct {
	participantService services.ParticipantService
	tokens             *middleware.TokenIssuer
}

func NewAuthHandler(participantService services.ParticipantService, tokens *middleware.TokenIssuer) *AuthHandler {
	return &AuthHandler{
		participantService: participantService,
		tokens:             tokens,
	}
}

// Register godoc
// @Summary Регистрация участника
// @Tags auth
// @Description Создает участника и пустой кошелек в валюте по умолчанию.
// @Accept json
// @Produce json
// @Param input body services.RegisterInput true "Имя и секрет"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.participantService.Register(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	token, err := h.tokens.Issue(participant.ID)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"participant": participant, "token": token}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Login godoc
// @Summary Вход участника
// @Tags auth
// @Accept json
// @Produce json
// @Param input body services.LoginInput true "ID участника и секрет"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.ParticipantID == "" || input.Secret == "" {
		badRequestResponse(w, r, errors.New("participant_id and secret are required"))
		return
	}

	participant, err := h.participantService.Authenticate(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	token, err := h.tokens.Issue(participant.ID)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
