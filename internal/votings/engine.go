package votings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
)

// Invalidator is notified after a voting's tree or votes changed.
type Invalidator interface {
	Invalidate(ctx context.Context, votingID int64)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, int64) {}

// LogicPatch carries the opaque logic fields; nil means "leave unchanged".
type LogicPatch struct {
	QuestionAnswerPairs *string `json:"question_answer_pairs"`
	HiddenPages         *string `json:"hidden_pages"`
}

// Engine creates, replaces and deletes voting trees.
type Engine struct {
	store  store.Store
	inval  Invalidator
	logger *zap.Logger
}

// NewEngine creates a voting engine. inval may be nil.
func NewEngine(st store.Store, inval Invalidator, logger *zap.Logger) *Engine {
	if inval == nil {
		inval = nopInvalidator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, inval: inval, logger: logger}
}

// CreateVoting persists a decoded tree owned by authorID and returns it with
// the generated ids.
func (e *Engine) CreateVoting(ctx context.Context, tree *models.Tree, authorID int64) (*models.Tree, error) {
	var out *models.Tree
	err := e.store.Update(ctx, func(tx store.Tx) error {
		v := tree.Voting
		v.ID = 0
		v.AuthorID = authorID
		if err := tx.InsertVoting(ctx, &v); err != nil {
			return fmt.Errorf("insert voting: %w", err)
		}
		built, err := insertChildren(ctx, tx, v, tree)
		out = built
		return err
	})
	if err != nil {
		return nil, domainerrors.Storage("create voting", err)
	}
	e.logger.Debug("voting created", zap.Int64("voting_id", out.Voting.ID), zap.Int("pages", len(out.Pages)))
	return out, nil
}

// ReplaceVoting overwrites the flagged scalar fields and swaps the whole child
// subtree for the one in tree. Child ids are not preserved, and votes on the
// old questions go with them.
func (e *Engine) ReplaceVoting(ctx context.Context, votingID int64, tree *models.Tree, requestorID int64) (*models.Tree, error) {
	return e.mutate(ctx, "replace voting", votingID, requestorID, func(tx store.Tx, v *models.Voting) (*models.Tree, error) {
		applyFields(v, tree.Voting, tree.Set)
		if err := tx.UpdateVoting(ctx, v); err != nil {
			return nil, fmt.Errorf("update voting: %w", err)
		}
		if err := tx.DeletePages(ctx, votingID); err != nil {
			return nil, fmt.Errorf("delete pages: %w", err)
		}
		return insertChildren(ctx, tx, *v, tree)
	})
}

// DeleteVoting removes the voting and everything that hangs off it.
func (e *Engine) DeleteVoting(ctx context.Context, votingID, requestorID int64) error {
	_, err := e.mutate(ctx, "delete voting", votingID, requestorID, func(tx store.Tx, _ *models.Voting) (*models.Tree, error) {
		return nil, tx.DeleteVoting(ctx, votingID)
	})
	return err
}

// PatchLogicFields stores the opaque logic strings as given.
func (e *Engine) PatchLogicFields(ctx context.Context, votingID int64, patch LogicPatch, requestorID int64) (*models.Tree, error) {
	return e.mutate(ctx, "patch logic", votingID, requestorID, func(tx store.Tx, v *models.Voting) (*models.Tree, error) {
		if patch.QuestionAnswerPairs != nil {
			v.QuestionAnswerPairs = *patch.QuestionAnswerPairs
		}
		if patch.HiddenPages != nil {
			v.HiddenPages = *patch.HiddenPages
		}
		if err := tx.UpdateVoting(ctx, v); err != nil {
			return nil, err
		}
		return tx.LoadTree(ctx, votingID)
	})
}

// PatchSubmitFlag sets is_submit.
func (e *Engine) PatchSubmitFlag(ctx context.Context, votingID int64, isSubmit bool, requestorID int64) (*models.Tree, error) {
	return e.mutate(ctx, "patch submit", votingID, requestorID, func(tx store.Tx, v *models.Voting) (*models.Tree, error) {
		v.IsSubmit = isSubmit
		if err := tx.UpdateVoting(ctx, v); err != nil {
			return nil, err
		}
		return tx.LoadTree(ctx, votingID)
	})
}

// GetVotingTree loads a voting with all descendants.
func (e *Engine) GetVotingTree(ctx context.Context, votingID int64) (*models.Tree, error) {
	var tree *models.Tree
	err := e.store.View(ctx, func(r store.Reader) error {
		var err error
		tree, err = r.LoadTree(ctx, votingID)
		return err
	})
	if err != nil {
		return nil, domainerrors.Storage("get voting", err)
	}
	return tree, nil
}

// ListVotingsByAuthor returns every tree authored by authorID. Callers may only
// list their own votings; anyone else gets ErrNotFound.
func (e *Engine) ListVotingsByAuthor(ctx context.Context, authorID, requestorID int64) ([]*models.Tree, error) {
	if authorID != requestorID {
		return nil, domainerrors.ErrNotFound
	}
	var trees []*models.Tree
	err := e.store.View(ctx, func(r store.Reader) error {
		ids, err := r.ListVotingIDsByAuthor(ctx, authorID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			tree, err := r.LoadTree(ctx, id)
			if err != nil {
				return err
			}
			trees = append(trees, tree)
		}
		return nil
	})
	if err != nil {
		return nil, domainerrors.Storage("list votings", err)
	}
	return trees, nil
}

// mutate locks the voting, checks authorship and runs fn in one transaction.
func (e *Engine) mutate(ctx context.Context, op string, votingID, requestorID int64, fn func(store.Tx, *models.Voting) (*models.Tree, error)) (*models.Tree, error) {
	var out *models.Tree
	err := e.store.Update(ctx, func(tx store.Tx) error {
		v, err := tx.LockVoting(ctx, votingID)
		if err != nil {
			return err
		}
		if v.AuthorID != requestorID {
			return domainerrors.ErrPermission
		}
		out, err = fn(tx, v)
		return err
	})
	if err != nil {
		return nil, domainerrors.Storage(op, err)
	}
	e.inval.Invalidate(ctx, votingID)
	return out, nil
}

func applyFields(dst *models.Voting, src models.Voting, set models.Field) {
	if set.Has(models.FieldTitle) {
		dst.Title = src.Title
	}
	if set.Has(models.FieldDescription) {
		dst.Description = src.Description
	}
	if set.Has(models.FieldIsSubmit) {
		dst.IsSubmit = src.IsSubmit
	}
	if set.Has(models.FieldQuestionAnswerPairs) {
		dst.QuestionAnswerPairs = src.QuestionAnswerPairs
	}
	if set.Has(models.FieldHiddenPages) {
		dst.HiddenPages = src.HiddenPages
	}
}

// insertChildren writes pages, then their questions, then their choices, in
// tree order, remapping the tree's ids onto the generated ones.
func insertChildren(ctx context.Context, tx store.Tx, v models.Voting, tree *models.Tree) (*models.Tree, error) {
	out := &models.Tree{Voting: v, Set: models.FieldAll}
	for _, p := range tree.Pages {
		page := models.Page{VotingID: v.ID, Title: p.Title, Order: p.Order}
		if err := tx.InsertPage(ctx, &page); err != nil {
			return nil, fmt.Errorf("insert page: %w", err)
		}
		out.Pages = append(out.Pages, page)
		for _, q := range tree.QuestionsOf(p.ID) {
			question := models.Question{PageID: page.ID, Title: q.Title, Type: q.Type}
			if err := tx.InsertQuestion(ctx, &question); err != nil {
				return nil, fmt.Errorf("insert question: %w", err)
			}
			out.Questions = append(out.Questions, question)
			for _, c := range tree.ChoicesOf(q.ID) {
				choice := models.Choice{QuestionID: question.ID, Name: c.Name}
				if err := tx.InsertChoice(ctx, &choice); err != nil {
					return nil, fmt.Errorf("insert choice: %w", err)
				}
				out.Choices = append(out.Choices, choice)
			}
		}
	}
	return out, nil
}
