package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
)

type memState struct {
	votings   map[int64]models.Voting
	pages     map[int64]models.Page
	questions map[int64]models.Question
	choices   map[int64]models.Choice
	votes     map[int64]models.Vote
	users     map[int64]models.User

	nextVoting, nextPage, nextQuestion, nextChoice, nextVote, nextUser int64
}

func newMemState() memState {
	return memState{
		votings:   make(map[int64]models.Voting),
		pages:     make(map[int64]models.Page),
		questions: make(map[int64]models.Question),
		choices:   make(map[int64]models.Choice),
		votes:     make(map[int64]models.Vote),
		users:     make(map[int64]models.User),
	}
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	c := s
	c.votings = cloneMap(s.votings)
	c.pages = cloneMap(s.pages)
	c.questions = cloneMap(s.questions)
	c.choices = cloneMap(s.choices)
	c.votes = cloneMap(s.votes)
	c.users = cloneMap(s.users)
	return c
}

// Memory is an in-process Store. Update works on a copy of the state and swaps
// it in only when the callback succeeds, so readers never see partial writes.
type Memory struct {
	mu    sync.RWMutex
	state memState
	now   func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState(), now: time.Now}
}

// View runs fn against the committed state.
func (m *Memory) View(_ context.Context, fn func(Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	return fn(&memTx{state: &st, now: m.now})
}

// Update runs fn on a private copy and commits it if fn returns nil. Writers are
// serialised by the store mutex.
func (m *Memory) Update(_ context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state.clone()
	if err := fn(&memTx{state: &st, now: m.now}); err != nil {
		return err
	}
	m.state = st
	return nil
}

// Close is a no-op.
func (m *Memory) Close() {}

type memTx struct {
	state *memState
	now   func() time.Time
}

func sortedIDs[V any](m map[int64]V, keep func(V) bool) []int64 {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *memTx) GetVoting(_ context.Context, id int64) (*models.Voting, error) {
	v, ok := t.state.votings[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return &v, nil
}

func (t *memTx) LoadTree(ctx context.Context, votingID int64) (*models.Tree, error) {
	v, err := t.GetVoting(ctx, votingID)
	if err != nil {
		return nil, err
	}
	tree := &models.Tree{Voting: *v, Set: models.FieldAll}
	pageIDs := make(map[int64]bool)
	for _, id := range sortedIDs(t.state.pages, func(p models.Page) bool { return p.VotingID == votingID }) {
		tree.Pages = append(tree.Pages, t.state.pages[id])
		pageIDs[id] = true
	}
	questionIDs := make(map[int64]bool)
	for _, id := range sortedIDs(t.state.questions, func(q models.Question) bool { return pageIDs[q.PageID] }) {
		tree.Questions = append(tree.Questions, t.state.questions[id])
		questionIDs[id] = true
	}
	for _, id := range sortedIDs(t.state.choices, func(c models.Choice) bool { return questionIDs[c.QuestionID] }) {
		tree.Choices = append(tree.Choices, t.state.choices[id])
	}
	return tree, nil
}

func (t *memTx) ListVotingIDsByAuthor(_ context.Context, authorID int64) ([]int64, error) {
	return sortedIDs(t.state.votings, func(v models.Voting) bool { return v.AuthorID == authorID }), nil
}

func (t *memTx) CountPages(_ context.Context, votingID int64) (int, error) {
	n := 0
	for _, p := range t.state.pages {
		if p.VotingID == votingID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) votingOfQuestion(questionID int64) (int64, bool) {
	q, ok := t.state.questions[questionID]
	if !ok {
		return 0, false
	}
	p, ok := t.state.pages[q.PageID]
	if !ok {
		return 0, false
	}
	return p.VotingID, true
}

func (t *memTx) QuestionVotings(_ context.Context, questionIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(questionIDs))
	for _, id := range questionIDs {
		if votingID, ok := t.votingOfQuestion(id); ok {
			out[id] = votingID
		}
	}
	return out, nil
}

func (t *memTx) ChoiceQuestions(_ context.Context, choiceIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(choiceIDs))
	for _, id := range choiceIDs {
		if c, ok := t.state.choices[id]; ok {
			out[id] = c.QuestionID
		}
	}
	return out, nil
}

func (t *memTx) ExistingUsers(_ context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if _, ok := t.state.users[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (t *memTx) CountVotes(_ context.Context, votingID int64) (map[models.VoteKey]int, error) {
	out := make(map[models.VoteKey]int)
	for _, v := range t.state.votes {
		if owner, ok := t.votingOfQuestion(v.QuestionID); ok && owner == votingID {
			out[models.VoteKey{QuestionID: v.QuestionID, ChoiceID: v.ChoiceID}]++
		}
	}
	return out, nil
}

func (t *memTx) ListVotes(_ context.Context, votingID int64) ([]models.VoteDetail, error) {
	var out []models.VoteDetail
	for _, id := range sortedIDs(t.state.votes, func(models.Vote) bool { return true }) {
		v := t.state.votes[id]
		if owner, ok := t.votingOfQuestion(v.QuestionID); !ok || owner != votingID {
			continue
		}
		out = append(out, models.VoteDetail{
			Vote:          v,
			Username:      t.state.users[v.UserID].Username,
			QuestionTitle: t.state.questions[v.QuestionID].Title,
			ChoiceName:    t.state.choices[v.ChoiceID].Name,
		})
	}
	return out, nil
}

func (t *memTx) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range t.state.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (t *memTx) LockVoting(ctx context.Context, id int64) (*models.Voting, error) {
	return t.GetVoting(ctx, id)
}

func (t *memTx) InsertVoting(_ context.Context, v *models.Voting) error {
	t.state.nextVoting++
	v.ID = t.state.nextVoting
	t.state.votings[v.ID] = *v
	return nil
}

func (t *memTx) UpdateVoting(_ context.Context, v *models.Voting) error {
	if _, ok := t.state.votings[v.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	t.state.votings[v.ID] = *v
	return nil
}

func (t *memTx) DeleteVoting(ctx context.Context, id int64) error {
	if _, ok := t.state.votings[id]; !ok {
		return domainerrors.ErrNotFound
	}
	if err := t.DeletePages(ctx, id); err != nil {
		return err
	}
	delete(t.state.votings, id)
	return nil
}

func (t *memTx) DeletePages(_ context.Context, votingID int64) error {
	for id, p := range t.state.pages {
		if p.VotingID != votingID {
			continue
		}
		for qid, q := range t.state.questions {
			if q.PageID != id {
				continue
			}
			for cid, c := range t.state.choices {
				if c.QuestionID == qid {
					delete(t.state.choices, cid)
				}
			}
			delete(t.state.questions, qid)
		}
		delete(t.state.pages, id)
	}
	for id, v := range t.state.votes {
		_, q := t.state.questions[v.QuestionID]
		_, c := t.state.choices[v.ChoiceID]
		if !q || !c {
			delete(t.state.votes, id)
		}
	}
	return nil
}

func (t *memTx) InsertPage(_ context.Context, p *models.Page) error {
	if _, ok := t.state.votings[p.VotingID]; !ok {
		return fmt.Errorf("insert page: voting %d does not exist", p.VotingID)
	}
	t.state.nextPage++
	p.ID = t.state.nextPage
	t.state.pages[p.ID] = *p
	return nil
}

func (t *memTx) InsertQuestion(_ context.Context, q *models.Question) error {
	if _, ok := t.state.pages[q.PageID]; !ok {
		return fmt.Errorf("insert question: page %d does not exist", q.PageID)
	}
	t.state.nextQuestion++
	q.ID = t.state.nextQuestion
	t.state.questions[q.ID] = *q
	return nil
}

func (t *memTx) InsertChoice(_ context.Context, c *models.Choice) error {
	if _, ok := t.state.questions[c.QuestionID]; !ok {
		return fmt.Errorf("insert choice: question %d does not exist", c.QuestionID)
	}
	t.state.nextChoice++
	c.ID = t.state.nextChoice
	t.state.choices[c.ID] = *c
	return nil
}

func (t *memTx) InsertVotes(_ context.Context, votes []models.Vote) error {
	for i := range votes {
		v := &votes[i]
		if _, ok := t.state.users[v.UserID]; !ok {
			return fmt.Errorf("insert vote: user %d does not exist", v.UserID)
		}
		if _, ok := t.state.questions[v.QuestionID]; !ok {
			return fmt.Errorf("insert vote: question %d does not exist", v.QuestionID)
		}
		if _, ok := t.state.choices[v.ChoiceID]; !ok {
			return fmt.Errorf("insert vote: choice %d does not exist", v.ChoiceID)
		}
		t.state.nextVote++
		v.ID = t.state.nextVote
		t.state.votes[v.ID] = *v
	}
	return nil
}

func (t *memTx) InsertUser(_ context.Context, u *models.User) error {
	for _, existing := range t.state.users {
		if existing.Username == u.Username {
			return ErrDuplicate
		}
	}
	t.state.nextUser++
	u.ID = t.state.nextUser
	u.CreatedAt = t.now()
	t.state.users[u.ID] = *u
	return nil
}
