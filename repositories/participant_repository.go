package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/lib/pq"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantConflict = errors.New("participant already exists")
)

type ParticipantRepository interface {
	Create(ctx context.Context, p *models.Participant) error
	GetByID(ctx context.Context, id string) (*models.Participant, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (id, display_name, wallet_account_id, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.DisplayName, p.WalletAccountID, p.SecretHash,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrParticipantConflict
		}
		return fmt.Errorf("failed to create participant %s: %w", p.ID, err)
	}
	return nil
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	query := `SELECT id, display_name, wallet_account_id, secret_hash, created_at
			  FROM participants WHERE id = $1`
	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.DisplayName, &p.WalletAccountID, &p.SecretHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s: %w", id, err)
	}
	return p, nil
}

type memoryParticipantRepository struct {
	mu           sync.RWMutex
	participants map[string]models.Participant
}

func NewMemoryParticipantRepository() ParticipantRepository {
	return &memoryParticipantRepository{participants: make(map[string]models.Participant)}
}

func (r *memoryParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[p.ID]; ok {
		return ErrParticipantConflict
	}
	for _, existing := range r.participants {
		if existing.WalletAccountID == p.WalletAccountID {
			return ErrParticipantConflict
		}
	}
	p.CreatedAt = time.Now()
	r.participants[p.ID] = *p
	return nil
}

func (r *memoryParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return &p, nil
}
