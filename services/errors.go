package services

import "errors"

// Общие ошибки, используемые в сервисах и маппинге HTTP.
var (
	// Матч не найден или уже не в нужной фазе ("invalid or already started").
	ErrMatchUnavailable = errors.New("match is invalid or already started")
	// Баланса не хватает на ставку; матч не изменяется.
	ErrInsufficientFunds = errors.New("insufficient funds for the stake")
	// Повторная отправка результата: сигнал для клиента, не ошибка пользователя.
	ErrScoreAlreadySubmitted = errors.New("score already submitted")
	// Проигрыш гонки compare-and-set при расчете: другой клиент уже рассчитал матч.
	ErrSettlementConflict = errors.New("settlement already performed by another client")

	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidStake          = errors.New("stake amount must be positive")
	ErrCurrencyMismatch      = errors.New("stake currency does not match wallet currency")
	ErrUnknownGameType       = errors.New("unknown game type")
	ErrForbiddenOperation    = errors.New("operation not allowed for the current participant")
	ErrNotParticipant        = errors.New("caller is not a participant of this match")
	ErrCannotJoinOwnMatch    = errors.New("initiator cannot join their own match")
	ErrInvalidPhase          = errors.New("operation not allowed in the current match phase")
	ErrHandshakeIncomplete   = errors.New("both participants must be ready")
	ErrScoresIncomplete      = errors.New("both scores are required to settle")
	ErrCodeSpaceExhausted    = errors.New("could not allocate a unique match code")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrInvalidScore          = errors.New("score must be a finite number")
	ErrDisplayNameRequired   = errors.New("display name is required")
	ErrSecretTooShort        = errors.New("secret is too short")
	ErrWalletNotFound        = errors.New("wallet account not found")
)
