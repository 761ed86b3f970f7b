// Package votes validates and records bulk vote submissions and aggregates
// them into per-choice tallies.
package votes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
)

// Invalidator is told when a voting's votes changed.
type Invalidator interface {
	Invalidate(ctx context.Context, votingID int64)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, int64) {}

// Validator checks a batch of votes against a voting tree and writes it in the
// same transaction.
type Validator struct {
	store  store.Store
	strict bool
	inval  Invalidator
	logger *zap.Logger
}

// NewValidator creates a vote validator. With strict set, a vote whose choice
// belongs to a different question than the one it names is rejected.
func NewValidator(st store.Store, strict bool, inval Invalidator, logger *zap.Logger) *Validator {
	if inval == nil {
		inval = nopInvalidator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{store: st, strict: strict, inval: inval, logger: logger}
}

// SubmitVotes validates every entry and inserts them all, or none. The
// returned votes carry their generated ids.
func (v *Validator) SubmitVotes(ctx context.Context, votingID int64, entries []models.Vote) ([]models.Vote, error) {
	var out []models.Vote
	err := v.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetVoting(ctx, votingID); err != nil {
			return err
		}
		pages, err := tx.CountPages(ctx, votingID)
		if err != nil {
			return err
		}
		if pages == 0 {
			return domainerrors.ErrEmptyVoting
		}
		if err := checkShape(entries); err != nil {
			return err
		}
		if err := v.checkRefs(ctx, tx, votingID, entries); err != nil {
			return err
		}

		batch := make([]models.Vote, len(entries))
		for i, e := range entries {
			batch[i] = models.Vote{UserID: e.UserID, QuestionID: e.QuestionID, ChoiceID: e.ChoiceID}
		}
		if err := tx.InsertVotes(ctx, batch); err != nil {
			return fmt.Errorf("insert votes: %w", err)
		}
		out = batch
		return nil
	})
	if err != nil {
		return nil, domainerrors.Storage("submit votes", err)
	}
	v.inval.Invalidate(ctx, votingID)
	v.logger.Debug("votes recorded", zap.Int64("voting_id", votingID), zap.Int("count", len(out)))
	return out, nil
}

func checkShape(entries []models.Vote) error {
	if len(entries) == 0 {
		return domainerrors.Invalid("", "expected a non-empty list of votes")
	}
	var fields []domainerrors.FieldError
	for i, e := range entries {
		if e.UserID <= 0 {
			fields = append(fields, entryError(i, "user", "this field is required"))
		}
		if e.QuestionID <= 0 {
			fields = append(fields, entryError(i, "question", "this field is required"))
		}
		if e.ChoiceID <= 0 {
			fields = append(fields, entryError(i, "choice", "this field is required"))
		}
	}
	if len(fields) > 0 {
		return &domainerrors.ValidationError{Fields: fields}
	}
	return nil
}

// checkRefs resolves every referenced row in three lookups and walks the batch
// in order, so the first offending entry decides the error.
func (v *Validator) checkRefs(ctx context.Context, tx store.Tx, votingID int64, entries []models.Vote) error {
	userIDs := make([]int64, 0, len(entries))
	questionIDs := make([]int64, 0, len(entries))
	choiceIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		userIDs = append(userIDs, e.UserID)
		questionIDs = append(questionIDs, e.QuestionID)
		choiceIDs = append(choiceIDs, e.ChoiceID)
	}

	users, err := tx.ExistingUsers(ctx, dedupe(userIDs))
	if err != nil {
		return err
	}
	var fields []domainerrors.FieldError
	for i, e := range entries {
		if !users[e.UserID] {
			fields = append(fields, entryError(i, "user", fmt.Sprintf("invalid pk %q - object does not exist", fmt.Sprint(e.UserID))))
		}
	}
	if len(fields) > 0 {
		return &domainerrors.ValidationError{Fields: fields}
	}

	owners, err := tx.QuestionVotings(ctx, dedupe(questionIDs))
	if err != nil {
		return err
	}
	for i, e := range entries {
		if _, ok := owners[e.QuestionID]; !ok {
			fields = append(fields, entryError(i, "question", fmt.Sprintf("invalid pk %q - object does not exist", fmt.Sprint(e.QuestionID))))
		}
	}
	if len(fields) > 0 {
		return &domainerrors.ValidationError{Fields: fields}
	}
	for _, e := range entries {
		if owners[e.QuestionID] != votingID {
			return domainerrors.OutOfScope("question %d does not belong to the specified voting", e.QuestionID)
		}
	}

	parents, err := tx.ChoiceQuestions(ctx, dedupe(choiceIDs))
	if err != nil {
		return err
	}
	for i, e := range entries {
		if _, ok := parents[e.ChoiceID]; !ok {
			fields = append(fields, entryError(i, "choice", fmt.Sprintf("invalid pk %q - object does not exist", fmt.Sprint(e.ChoiceID))))
		}
	}
	if len(fields) > 0 {
		return &domainerrors.ValidationError{Fields: fields}
	}
	if v.strict {
		for _, e := range entries {
			if parents[e.ChoiceID] != e.QuestionID {
				return domainerrors.OutOfScope("choice %d does not belong to question %d", e.ChoiceID, e.QuestionID)
			}
		}
	}
	return nil
}

func entryError(i int, field, msg string) domainerrors.FieldError {
	return domainerrors.FieldError{Field: fmt.Sprintf("[%d].%s", i, field), Message: msg}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
