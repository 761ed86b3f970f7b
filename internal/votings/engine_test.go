package votings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
)

const (
	author   int64 = 1
	stranger int64 = 2
)

type spyInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (s *spyInvalidator) Invalidate(_ context.Context, votingID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, votingID)
}

// failingStore runs the real memory store but fails every choice insert.
type failingStore struct{ *store.Memory }

type failingTx struct{ store.Tx }

func (failingTx) InsertChoice(context.Context, *models.Choice) error { return errors.New("disk full") }

func (s failingStore) Update(ctx context.Context, fn func(store.Tx) error) error {
	return s.Memory.Update(ctx, func(tx store.Tx) error { return fn(failingTx{tx}) })
}

func mustDecode(t *testing.T, body string) *models.Tree {
	t.Helper()
	tree, err := Decode([]byte(body))
	require.NoError(t, err)
	return tree
}

func mustDecodeUpdate(t *testing.T, body string) *models.Tree {
	t.Helper()
	tree, err := DecodeUpdate([]byte(body))
	require.NoError(t, err)
	return tree
}

func encodedJSON(t *testing.T, e *Engine, id int64) string {
	t.Helper()
	tree, err := e.GetVotingTree(context.Background(), id)
	require.NoError(t, err)
	raw, err := json.Marshal(Encode(tree))
	require.NoError(t, err)
	return string(raw)
}

func TestCreateVoting(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	out, err := e.CreateVoting(context.Background(), mustDecode(t, lunchPoll), author)
	require.NoError(t, err)

	assert.Positive(t, out.Voting.ID)
	assert.Equal(t, author, out.Voting.AuthorID)
	require.Len(t, out.Choices, 2)
	assert.Equal(t, out.Questions[0].ID, out.Choices[0].QuestionID)

	loaded, err := e.GetVotingTree(context.Background(), out.Voting.ID)
	require.NoError(t, err)
	assert.Equal(t, Encode(out), Encode(loaded))
}

func TestCreateVotingRollsBackWhenChildInsertFails(t *testing.T) {
	mem := store.NewMemory()
	e := NewEngine(failingStore{mem}, nil, nil)

	_, err := e.CreateVoting(context.Background(), mustDecode(t, lunchPoll), author)
	var se *domainerrors.StorageError
	require.ErrorAs(t, err, &se)

	trees, err := NewEngine(mem, nil, nil).ListVotingsByAuthor(context.Background(), author, author)
	require.NoError(t, err)
	assert.Empty(t, trees)
}

func TestReplaceVotingSwapsSubtree(t *testing.T) {
	inval := &spyInvalidator{}
	e := NewEngine(store.NewMemory(), inval, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)
	id := created.Voting.ID

	replaced, err := e.ReplaceVoting(ctx, id, mustDecodeUpdate(t, `{"title": "Dinner Poll", "pages": [
		{"title": "P1", "questions": [{"title": "Q1", "type": "radio", "choices": [{"name": "X"}]}]},
		{"title": "P2", "questions": [{"title": "Q2"}, {"title": "Q3", "choices": [{"name": "Y"}, {"name": "Z"}]}]}
	]}`), author)
	require.NoError(t, err)

	assert.Equal(t, "Dinner Poll", replaced.Voting.Title)
	assert.Equal(t, created.Voting.Description, replaced.Voting.Description)
	require.Len(t, replaced.Pages, 2)
	require.Len(t, replaced.Questions, 3)
	require.Len(t, replaced.Choices, 3)
	for _, old := range created.Choices {
		for _, c := range replaced.Choices {
			assert.NotEqual(t, old.ID, c.ID)
		}
	}

	loaded, err := e.GetVotingTree(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Encode(replaced), Encode(loaded))
	assert.Equal(t, []int64{id}, inval.ids)
}

func TestReplaceVotingWithoutPagesClearsThem(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)

	out, err := e.ReplaceVoting(ctx, created.Voting.ID, mustDecodeUpdate(t, `{"description": "new"}`), author)
	require.NoError(t, err)
	assert.Empty(t, out.Pages)
	assert.Equal(t, "Lunch Poll", out.Voting.Title)
	assert.Equal(t, "new", out.Voting.Description)
}

func TestReplaceVotingByStrangerChangesNothing(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)
	before := encodedJSON(t, e, created.Voting.ID)

	_, err = e.ReplaceVoting(ctx, created.Voting.ID, mustDecodeUpdate(t, `{"title": "hijacked"}`), stranger)
	assert.ErrorIs(t, err, domainerrors.ErrPermission)
	assert.Equal(t, before, encodedJSON(t, e, created.Voting.ID))
}

func TestReplaceVotingFailureLeavesTreeIntact(t *testing.T) {
	mem := store.NewMemory()
	e := NewEngine(mem, nil, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)
	before := encodedJSON(t, e, created.Voting.ID)

	_, err = NewEngine(failingStore{mem}, nil, nil).ReplaceVoting(ctx, created.Voting.ID, mustDecode(t, lunchPoll), author)
	require.Error(t, err)
	assert.Equal(t, before, encodedJSON(t, e, created.Voting.ID))
}

func TestReplaceUnknownVoting(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	_, err := e.ReplaceVoting(context.Background(), 404, mustDecodeUpdate(t, `{}`), author)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDeleteVotingCascadesVotes(t *testing.T) {
	mem := store.NewMemory()
	e := NewEngine(mem, nil, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)

	require.NoError(t, mem.Update(ctx, func(tx store.Tx) error {
		u := models.User{Username: "voter"}
		if err := tx.InsertUser(ctx, &u); err != nil {
			return err
		}
		return tx.InsertVotes(ctx, []models.Vote{{UserID: u.ID, QuestionID: created.Questions[0].ID, ChoiceID: created.Choices[0].ID}})
	}))

	assert.ErrorIs(t, e.DeleteVoting(ctx, created.Voting.ID, stranger), domainerrors.ErrPermission)
	require.NoError(t, e.DeleteVoting(ctx, created.Voting.ID, author))

	_, err = e.GetVotingTree(ctx, created.Voting.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	require.NoError(t, mem.View(ctx, func(r store.Reader) error {
		counts, err := r.CountVotes(ctx, created.Voting.ID)
		assert.Empty(t, counts)
		owners, _ := r.ChoiceQuestions(ctx, []int64{created.Choices[0].ID})
		assert.Empty(t, owners)
		return err
	}))
}

func TestPatchLogicAndSubmit(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)
	id := created.Voting.ID

	pairs := `{"1":[2,3]}`
	out, err := e.PatchLogicFields(ctx, id, LogicPatch{QuestionAnswerPairs: &pairs}, author)
	require.NoError(t, err)
	assert.Equal(t, pairs, out.Voting.QuestionAnswerPairs)
	assert.Equal(t, "", out.Voting.HiddenPages)
	require.Len(t, out.Choices, 2, "patch keeps the tree")

	out, err = e.PatchSubmitFlag(ctx, id, true, author)
	require.NoError(t, err)
	assert.True(t, out.Voting.IsSubmit)
	assert.Equal(t, pairs, out.Voting.QuestionAnswerPairs)

	_, err = e.PatchSubmitFlag(ctx, id, false, stranger)
	assert.ErrorIs(t, err, domainerrors.ErrPermission)
}

func TestListVotingsByAuthor(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
		require.NoError(t, err)
	}
	_, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), stranger)
	require.NoError(t, err)

	trees, err := e.ListVotingsByAuthor(ctx, author, author)
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Less(t, trees[0].Voting.ID, trees[1].Voting.ID)

	_, err = e.ListVotingsByAuthor(ctx, author, stranger)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestConcurrentReplacesNeverInterleave(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil, nil)
	ctx := context.Background()
	created, err := e.CreateVoting(ctx, mustDecode(t, lunchPoll), author)
	require.NoError(t, err)
	id := created.Voting.ID

	a := mustDecodeUpdate(t, `{"pages": [{"title": "A", "questions": [{"title": "qa", "choices": [{"name": "a1"}]}]}]}`)
	b := mustDecodeUpdate(t, `{"pages": [{"title": "B1"}, {"title": "B2"}]}`)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = e.ReplaceVoting(ctx, id, a, author) }()
		go func() { defer wg.Done(); _, _ = e.ReplaceVoting(ctx, id, b, author) }()
	}
	wg.Wait()

	tree, err := e.GetVotingTree(ctx, id)
	require.NoError(t, err)
	switch len(tree.Pages) {
	case 1:
		assert.Equal(t, "A", tree.Pages[0].Title)
		assert.Len(t, tree.Choices, 1)
	case 2:
		assert.Equal(t, "B1", tree.Pages[0].Title)
		assert.Empty(t, tree.Questions)
	default:
		t.Fatalf("unexpected page count %d", len(tree.Pages))
	}
}
