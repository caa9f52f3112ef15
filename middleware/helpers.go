package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

const jwtClaimParticipantID = "participant_id"

func GetParticipantIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(participantContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("participant claims not found in context or invalid type")
	}

	idClaim, ok := claims[jwtClaimParticipantID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimParticipantID)
	}
	id, ok := idClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimParticipantID, idClaim)
	}
	if id == "" {
		return "", fmt.Errorf("empty '%s' claim", jwtClaimParticipantID)
	}
	return id, nil
}

// WithParticipantID returns a context carrying participantID as if a verified
// token had been presented.
func WithParticipantID(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, participantContextKey, jwt.MapClaims{jwtClaimParticipantID: participantID})
}
