// Package store persists votings, their page/question/choice trees, votes and
// users. Every mutation runs inside Update so a failed operation leaves no
// partial state behind.
package store

import (
	"context"
	"errors"

	"github.com/surapp/backend/internal/models"
)

// ErrDuplicate is returned when a unique key (e.g. username) is already taken.
var ErrDuplicate = errors.New("store: duplicate key")

// Reader is the read side of the store. Lookups of a single missing row return
// domain errors.ErrNotFound.
type Reader interface {
	GetVoting(ctx context.Context, id int64) (*models.Voting, error)
	// LoadTree returns the voting with all descendants in insertion order.
	LoadTree(ctx context.Context, votingID int64) (*models.Tree, error)
	ListVotingIDsByAuthor(ctx context.Context, authorID int64) ([]int64, error)
	CountPages(ctx context.Context, votingID int64) (int, error)
	// QuestionVotings maps each known question id to the voting owning its page.
	QuestionVotings(ctx context.Context, questionIDs []int64) (map[int64]int64, error)
	// ChoiceQuestions maps each known choice id to its question id.
	ChoiceQuestions(ctx context.Context, choiceIDs []int64) (map[int64]int64, error)
	ExistingUsers(ctx context.Context, userIDs []int64) (map[int64]bool, error)
	CountVotes(ctx context.Context, votingID int64) (map[models.VoteKey]int, error)
	ListVotes(ctx context.Context, votingID int64) ([]models.VoteDetail, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Tx is a read-write unit of work. Insert methods set the generated ID on the
// passed row.
type Tx interface {
	Reader
	// LockVoting loads the voting and holds it against concurrent writers
	// until the transaction ends.
	LockVoting(ctx context.Context, id int64) (*models.Voting, error)
	InsertVoting(ctx context.Context, v *models.Voting) error
	UpdateVoting(ctx context.Context, v *models.Voting) error
	// DeleteVoting removes the voting and everything below it, votes included.
	DeleteVoting(ctx context.Context, id int64) error
	// DeletePages removes every page of the voting, cascading to questions,
	// choices and the votes that referenced them.
	DeletePages(ctx context.Context, votingID int64) error
	InsertPage(ctx context.Context, p *models.Page) error
	InsertQuestion(ctx context.Context, q *models.Question) error
	InsertChoice(ctx context.Context, c *models.Choice) error
	InsertVotes(ctx context.Context, votes []models.Vote) error
	InsertUser(ctx context.Context, u *models.User) error
}

// Store runs reads against a consistent snapshot and writes atomically.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
	// Update commits only if fn returns nil.
	Update(ctx context.Context, fn func(Tx) error) error
	Close()
}
