package models

import "time"

// MatchPhase представляет фазу матча, соответствует колонке phase в БД.
type MatchPhase string

const (
	PhaseWaiting    MatchPhase = "waiting"
	PhaseConnecting MatchPhase = "connecting"
	PhaseCountdown  MatchPhase = "countdown"
	PhasePlaying    MatchPhase = "playing"
	PhaseCompleted  MatchPhase = "completed"
	PhaseAbandoned  MatchPhase = "abandoned"
)

// IsTerminal reports whether no further transition can leave the phase.
func (p MatchPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAbandoned
}

// Cancelable reports whether a participant may still abandon the match explicitly.
func (p MatchPhase) Cancelable() bool {
	return p == PhaseWaiting || p == PhaseConnecting
}

type SettlementState string

const (
	SettlementNone     SettlementState = "none"
	SettlementEscrowed SettlementState = "escrowed"
	SettlementPaid     SettlementState = "paid"
	SettlementRefunded SettlementState = "refunded"
)

// ParticipantRole - роль участника в матче.
type ParticipantRole string

const (
	RoleInitiator ParticipantRole = "initiator"
	RoleJoiner    ParticipantRole = "joiner"
)

// MatchRecord is the single shared document both clients read, write and subscribe to.
type MatchRecord struct {
	Code             string          `json:"code"`
	Phase            MatchPhase      `json:"phase"`
	GameType         GameType        `json:"game_type"`
	StakeAmount      int64           `json:"stake_amount"`
	StakeCurrency    string          `json:"stake_currency"`
	InitiatorID      string          `json:"initiator_id"`
	JoinerID         *string         `json:"joiner_id,omitempty"`
	Pot              *int64          `json:"pot,omitempty"`
	Payout           *int64          `json:"payout,omitempty"`
	Fee              *int64          `json:"fee,omitempty"`
	InitiatorReady   bool            `json:"initiator_ready"`
	JoinerReady      bool            `json:"joiner_ready"`
	InitiatorEscrow  bool            `json:"initiator_escrowed"`
	JoinerEscrow     bool            `json:"joiner_escrowed"`
	InitiatorScore   *float64        `json:"initiator_score,omitempty"`
	JoinerScore      *float64        `json:"joiner_score,omitempty"`
	InitiatorScoreAt *time.Time      `json:"initiator_scored_at,omitempty"`
	JoinerScoreAt    *time.Time      `json:"joiner_scored_at,omitempty"`
	WinnerID         *string         `json:"winner_id,omitempty"`
	SettlementState  SettlementState `json:"settlement_state"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTransitionAt time.Time       `json:"last_transition_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// RoleOf returns the role participantID holds in the match, if any.
func (m *MatchRecord) RoleOf(participantID string) (ParticipantRole, bool) {
	switch {
	case participantID == "":
		return "", false
	case m.InitiatorID == participantID:
		return RoleInitiator, true
	case m.JoinerID != nil && *m.JoinerID == participantID:
		return RoleJoiner, true
	}
	return "", false
}

// BothScored reports whether both score fields are present.
func (m *MatchRecord) BothScored() bool {
	return m.InitiatorScore != nil && m.JoinerScore != nil
}

// ScoreOf returns the score written by the participant holding role.
func (m *MatchRecord) ScoreOf(role ParticipantRole) *float64 {
	if role == RoleInitiator {
		return m.InitiatorScore
	}
	return m.JoinerScore
}

// ReadyOf returns the handshake flag of the participant holding role.
func (m *MatchRecord) ReadyOf(role ParticipantRole) bool {
	if role == RoleInitiator {
		return m.InitiatorReady
	}
	return m.JoinerReady
}

// Participants returns initiator and, when present, joiner ids.
func (m *MatchRecord) Participants() []string {
	ids := []string{m.InitiatorID}
	if m.JoinerID != nil {
		ids = append(ids, *m.JoinerID)
	}
	return ids
}

// ScoreSubmission is one participant's write-once result for a match.
type ScoreSubmission struct {
	MatchCode     string    `json:"match_code"`
	ParticipantID string    `json:"participant_id"`
	Value         float64   `json:"value"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
