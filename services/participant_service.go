package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/wager-match/models"
	"github.com/Dosada05/wager-match/repositories"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minSecretLength = 8

type RegisterInput struct {
	DisplayName string `json:"display_name"`
	Secret      string `json:"secret"`
}

type LoginInput struct {
	ParticipantID string `json:"participant_id"`
	Secret        string `json:"secret"`
}

// ParticipantService регистрирует участников и управляет их кошельками.
type ParticipantService interface {
	Register(ctx context.Context, input RegisterInput) (*models.Participant, error)
	Authenticate(ctx context.Context, input LoginInput) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	GetWallet(ctx context.Context, participantID string) (*models.WalletAccount, error)
	// Deposit tops the wallet up; the caller-supplied key makes retries safe.
	Deposit(ctx context.Context, participantID string, amount int64, idempotencyKey string) (*models.WalletAccount, error)
}

type participantService struct {
	participants    repositories.ParticipantRepository
	ledger          repositories.WalletLedger
	defaultCurrency string
	logger          *slog.Logger
}

func NewParticipantService(
	participants repositories.ParticipantRepository,
	ledger repositories.WalletLedger,
	defaultCurrency string,
	logger *slog.Logger,
) ParticipantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &participantService{
		participants:    participants,
		ledger:          ledger,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

func (s *participantService) Register(ctx context.Context, input RegisterInput) (*models.Participant, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, ErrDisplayNameRequired
	}
	if len(input.Secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования секрета: %w", err)
	}

	account, err := s.ledger.CreateAccount(ctx, uuid.NewString(), s.defaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}

	p := &models.Participant{
		ID:              uuid.NewString(),
		DisplayName:     name,
		WalletAccountID: account.AccountID,
		SecretHash:      string(hash),
	}
	if err := s.participants.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	s.logger.Info("participant registered", slog.String("participant_id", p.ID))
	return p, nil
}

func (s *participantService) Authenticate(ctx context.Context, input LoginInput) (*models.Participant, error) {
	p, err := s.participants.GetByID(ctx, input.ParticipantID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(p.SecretHash), []byte(input.Secret))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to compare secret hash: %w", err)
	}
	return p, nil
}

func (s *participantService) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	p, err := s.participants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s: %w", id, err)
	}
	return p, nil
}

func (s *participantService) GetWallet(ctx context.Context, participantID string) (*models.WalletAccount, error) {
	return walletOf(ctx, s.participants, s.ledger, participantID)
}

func (s *participantService) Deposit(ctx context.Context, participantID string, amount int64, idempotencyKey string) (*models.WalletAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", ErrValidationFailed)
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidationFailed)
	}

	account, err := walletOf(ctx, s.participants, s.ledger, participantID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s:%s:%s", models.OpDeposit, account.AccountID, idempotencyKey)
	_, applied, err := s.ledger.AdjustBalance(ctx, account.AccountID, amount, key)
	if err != nil {
		if errors.Is(err, repositories.ErrIdempotencyKeyReused) {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, fmt.Errorf("failed to deposit to %s: %w", participantID, err)
	}
	if applied {
		s.logger.Info("wallet deposit", slog.String("participant_id", participantID), slog.Int64("amount", amount))
	}
	return s.ledger.GetAccount(ctx, account.AccountID)
}
