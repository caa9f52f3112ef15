package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	DefaultCodeLength = 8
	minCodeLength     = 6
	maxCodeLength     = 12
	maxCodeAttempts   = 10
)

// CodeGenerator produces fixed-length numeric rendezvous codes that can be read
// aloud or typed. Codes are drawn uniformly from crypto/rand; uniqueness is
// enforced by the store's primary key and codes are never deleted, so a code is
// never handed out twice.
type CodeGenerator struct {
	length int
	max    *big.Int
	random io.Reader
}

func NewCodeGenerator(length int) (*CodeGenerator, error) {
	if length < minCodeLength || length > maxCodeLength {
		return nil, fmt.Errorf("code length must be between %d and %d, got %d", minCodeLength, maxCodeLength, length)
	}
	return &CodeGenerator{
		length: length,
		max:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil),
		random: rand.Reader,
	}, nil
}

func (g *CodeGenerator) Length() int {
	return g.length
}

// Next returns a new candidate code, zero-padded to the configured length.
func (g *CodeGenerator) Next() (string, error) {
	n, err := rand.Int(g.random, g.max)
	if err != nil {
		return "", fmt.Errorf("failed to read random code: %w", err)
	}
	return fmt.Sprintf("%0*d", g.length, n), nil
}

// Valid reports whether s has the shape of a code from this generator.
func (g *CodeGenerator) Valid(s string) bool {
	if len(s) != g.length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
