package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotStarted        = errors.New("service not started")
	ErrScoreNotFound     = errors.New("score not found")
	ErrScoreEmpty        = errors.New("score has no playable beats")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionBusy       = errors.New("session already playing")
	ErrInvalidTransition = errors.New("invalid playback transition")
)
