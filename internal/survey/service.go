// Package survey validates registrations and submissions and sequences the
// write, recompute and broadcast steps.
package survey

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/emilythestrangee/tally/backend/internal/database"
	"github.com/emilythestrangee/tally/backend/internal/models"
	"github.com/emilythestrangee/tally/backend/internal/notifier"
)

const MaxNameLength = 100

// ValidationError is a client mistake; its message is safe to return as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type Service struct {
	store    database.Store
	notifier notifier.Notifier
}

func NewService(store database.Store, n notifier.Notifier) *Service {
	return &Service{store: store, notifier: n}
}

// Register creates a participant from a trimmed, non-empty name of at most
// MaxNameLength characters.
func (s *Service) Register(ctx context.Context, name string) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, invalid("Name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return models.User{}, invalid(fmt.Sprintf("Name must be at most %d characters", MaxNameLength))
	}

	user, err := s.store.CreateUser(ctx, name)
	if err != nil {
		return models.User{}, fmt.Errorf("register user: %w", err)
	}
	return user, nil
}

func (s *Service) SubmitOne(ctx context.Context, req models.SubmitRequest) (models.Response, error) {
	if req.UserID == "" || req.UserName == "" || req.QuestionID == "" || req.SelectedOption == "" {
		return models.Response{}, invalid("All fields are required")
	}

	stored, err := s.store.Insert(ctx, models.Response{
		UserID:         req.UserID,
		UserName:       req.UserName,
		QuestionID:     req.QuestionID,
		SelectedOption: req.SelectedOption,
	})
	if err != nil {
		return models.Response{}, fmt.Errorf("submit response: %w", err)
	}

	s.notifier.Inserted(context.WithoutCancel(ctx), stored)
	return stored, nil
}

// SubmitAll stores one response per answer in a single batch and returns how
// many were written. A nil answers map is rejected; an empty one is a no-op.
// Once the write is committed the notification runs even if ctx is cancelled.
func (s *Service) SubmitAll(ctx context.Context, req models.SubmitAllRequest) (int, error) {
	if req.UserID == "" || req.UserName == "" || req.Answers == nil {
		return 0, invalid("All fields are required")
	}
	if len(req.Answers) == 0 {
		return 0, nil
	}

	// stable order keeps the batch deterministic
	ids := make([]string, 0, len(req.Answers))
	for id := range req.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	batch := make([]models.Response, 0, len(ids))
	for _, id := range ids {
		if id == "" || req.Answers[id] == "" {
			return 0, invalid("All fields are required")
		}
		batch = append(batch, models.Response{
			UserID:         req.UserID,
			UserName:       req.UserName,
			QuestionID:     id,
			SelectedOption: req.Answers[id],
		})
	}

	stored, err := s.store.InsertMany(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("submit all responses: %w", err)
	}

	s.notifier.Inserted(context.WithoutCancel(ctx), stored...)
	return len(stored), nil
}

// Reset wipes the store and pushes the empty state to viewers. Durable stores
// return database.ErrUnsupportedInDurableMode.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.notifier.Refresh(context.WithoutCancel(ctx))
	return nil
}

func (s *Service) Tallies(ctx context.Context) (models.Snapshot, error) {
	return s.store.Tallies(ctx)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]models.Response, error) {
	return s.store.ListRecent(ctx, limit)
}
