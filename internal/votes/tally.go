package votes

import (
	"context"
	"errors"

	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
)

// Cache holds computed tallies between writes. Entries are scoped to a
// generation that Invalidate advances; Get reports the generation it looked up
// so a tally computed from an older snapshot is never stored where the next
// reader will find it. A negative generation means the cache is unavailable.
type Cache interface {
	Get(ctx context.Context, votingID int64) (tally []models.QuestionTally, gen int64, ok bool)
	Set(ctx context.Context, votingID, gen int64, tally []models.QuestionTally)
	Invalidate(ctx context.Context, votingID int64)
}

// Aggregator computes per-choice vote counts for a voting.
type Aggregator struct {
	store  store.Store
	cache  Cache
	logger *zap.Logger
}

// NewAggregator creates a tally aggregator. cache may be nil.
func NewAggregator(st store.Store, cache Cache, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: st, cache: cache, logger: logger}
}

// Tally returns one entry per question in insertion order, each listing every
// choice with its vote count, zeros included. An unknown voting yields an
// empty list.
func (a *Aggregator) Tally(ctx context.Context, votingID int64) ([]models.QuestionTally, error) {
	gen := int64(-1)
	if a.cache != nil {
		cached, g, ok := a.cache.Get(ctx, votingID)
		if ok {
			return cached, nil
		}
		gen = g
	}

	var out []models.QuestionTally
	err := a.store.View(ctx, func(r store.Reader) error {
		tree, err := r.LoadTree(ctx, votingID)
		if err != nil {
			return err
		}
		counts, err := r.CountVotes(ctx, votingID)
		if err != nil {
			return err
		}
		out = Compute(tree, counts)
		return nil
	})
	if errors.Is(err, domainerrors.ErrNotFound) {
		return []models.QuestionTally{}, nil
	}
	if err != nil {
		return nil, domainerrors.Storage("tally", err)
	}
	if a.cache != nil && gen >= 0 {
		a.cache.Set(ctx, votingID, gen, out)
	}
	return out, nil
}

// ListVotes returns the raw votes cast in a voting, oldest first.
func (a *Aggregator) ListVotes(ctx context.Context, votingID int64) ([]models.VoteDetail, error) {
	var out []models.VoteDetail
	err := a.store.View(ctx, func(r store.Reader) error {
		if _, err := r.GetVoting(ctx, votingID); err != nil {
			return err
		}
		var err error
		out, err = r.ListVotes(ctx, votingID)
		return err
	})
	if err != nil {
		return nil, domainerrors.Storage("list votes", err)
	}
	if out == nil {
		out = []models.VoteDetail{}
	}
	return out, nil
}

// Compute folds vote counts into the tree's question and choice order.
func Compute(tree *models.Tree, counts map[models.VoteKey]int) []models.QuestionTally {
	out := make([]models.QuestionTally, 0, len(tree.Questions))
	for _, q := range tree.Questions {
		qt := models.QuestionTally{
			QuestionID:    q.ID,
			QuestionTitle: q.Title,
			QuestionType:  q.Type,
			Choices:       []models.ChoiceTally{},
		}
		for _, c := range tree.ChoicesOf(q.ID) {
			qt.Choices = append(qt.Choices, models.ChoiceTally{
				ChoiceID:   c.ID,
				ChoiceName: c.Name,
				VoteCount:  counts[models.VoteKey{QuestionID: q.ID, ChoiceID: c.ID}],
			})
		}
		out = append(out, qt)
	}
	return out
}
