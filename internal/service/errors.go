package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Error kinds. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTransferRequired = errors.New("transfer required")
)

// Error is a service failure with a readable message and a kind
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func invalid(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func conflict(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

func forbidden(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

// TransferRequiredError is returned when a client already sits in another block
// and the caller did not supply a cutoff for the move.
type TransferRequiredError struct {
	ClientID         uuid.UUID
	CurrentBlockID   uuid.UUID
	CurrentBlockName string
	TargetBlockID    uuid.UUID
}

func (e *TransferRequiredError) Error() string {
	name := e.CurrentBlockName
	if name == "" {
		name = e.CurrentBlockID.String()
	}
	return fmt.Sprintf("client is already assigned to block %q; a transfer with a cutoff date is required", name)
}

func (e *TransferRequiredError) Unwrap() error { return ErrTransferRequired }

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func parseID(raw, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, invalid("invalid %s id", label)
	}
	return id, nil
}

func parseOptionalID(raw, label string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw, label)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// actorID parses the acting user's id; an empty or malformed id yields nil (system actor)
func actorID(userID string) *uuid.UUID {
	if userID == "" {
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &parsed
}
