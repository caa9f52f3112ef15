package models

// GameType identifies the scoring module that governs a match.
type GameType string

const (
	GameReaction   GameType = "reaction"
	GameArithmetic GameType = "arithmetic"
	GameTyping     GameType = "typing"
	GameLogic      GameType = "logic"
)
