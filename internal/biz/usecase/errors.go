package usecase

import "errors"

var (
	// ErrTranscriptionOnly is returned by Generate when the entity only transcribes audio
	ErrTranscriptionOnly = errors.New("entity is in transcription-only mode")

	// ErrGenerationFailed wraps the last generator error once retries are exhausted
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidConfig is the family of user-visible validation errors
	ErrInvalidConfig = errors.New("invalid config")

	// ErrCommandNotAllowed is returned when admin mode blocks a command
	ErrCommandNotAllowed = errors.New("command not allowed")

	// ErrReminderNotFound is returned when cancelling an unknown reminder
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrInvalidReminder is returned for malformed reminder requests
	ErrInvalidReminder = errors.New("invalid reminder")
)
