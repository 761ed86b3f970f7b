package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the PostgreSQL-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// View runs fn in a read-only repeatable-read transaction so multi-query reads
// (tree + vote counts) observe one snapshot.
func (s *Postgres) View(ctx context.Context, fn func(Reader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

// Update runs fn in a read-committed transaction; fn returning an error rolls
// everything back.
func (s *Postgres) Update(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

// Close closes the underlying pool.
func (s *Postgres) Close() { s.pool.Close() }

type pgTx struct {
	q querier
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domainerrors.ErrNotFound
	}
	return err
}

// missingParent maps a foreign key violation (the parent row was deleted by a
// concurrent transaction) onto ErrNotFound.
func missingParent(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domainerrors.ErrNotFound)
	}
	return err
}

const votingColumns = `id, title, description, author_id, is_submit, question_answer_pairs, hidden_pages`

func scanVoting(row pgx.Row) (*models.Voting, error) {
	var v models.Voting
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.AuthorID, &v.IsSubmit, &v.QuestionAnswerPairs, &v.HiddenPages)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (t *pgTx) GetVoting(ctx context.Context, id int64) (*models.Voting, error) {
	return scanVoting(t.q.QueryRow(ctx, `SELECT `+votingColumns+` FROM votings WHERE id = $1`, id))
}

func (t *pgTx) LockVoting(ctx context.Context, id int64) (*models.Voting, error) {
	return scanVoting(t.q.QueryRow(ctx, `SELECT `+votingColumns+` FROM votings WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) LoadTree(ctx context.Context, votingID int64) (*models.Tree, error) {
	v, err := t.GetVoting(ctx, votingID)
	if err != nil {
		return nil, err
	}
	tree := &models.Tree{Voting: *v, Set: models.FieldAll}

	rows, err := t.q.Query(ctx, `SELECT id, voting_id, title, page_order FROM pages WHERE voting_id = $1 ORDER BY id`, votingID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	tree.Pages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Page, error) {
		var p models.Page
		err := row.Scan(&p.ID, &p.VotingID, &p.Title, &p.Order)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pages: %w", err)
	}

	const qq = `SELECT q.id, q.page_id, q.title, q.type FROM questions q
		JOIN pages p ON p.id = q.page_id WHERE p.voting_id = $1 ORDER BY q.id`
	rows, err = t.q.Query(ctx, qq, votingID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	tree.Questions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Question, error) {
		var q models.Question
		err := row.Scan(&q.ID, &q.PageID, &q.Title, &q.Type)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}

	const cq = `SELECT c.id, c.question_id, c.name FROM choices c
		JOIN questions q ON q.id = c.question_id
		JOIN pages p ON p.id = q.page_id WHERE p.voting_id = $1 ORDER BY c.id`
	rows, err = t.q.Query(ctx, cq, votingID)
	if err != nil {
		return nil, fmt.Errorf("query choices: %w", err)
	}
	tree.Choices, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Choice, error) {
		var c models.Choice
		err := row.Scan(&c.ID, &c.QuestionID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan choices: %w", err)
	}
	return tree, nil
}

func (t *pgTx) ListVotingIDsByAuthor(ctx context.Context, authorID int64) ([]int64, error) {
	rows, err := t.q.Query(ctx, `SELECT id FROM votings WHERE author_id = $1 ORDER BY id`, authorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *pgTx) CountPages(ctx context.Context, votingID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM pages WHERE voting_id = $1`, votingID).Scan(&n)
	return n, err
}

func (t *pgTx) QuestionVotings(ctx context.Context, questionIDs []int64) (map[int64]int64, error) {
	const q = `SELECT q.id, p.voting_id FROM questions q JOIN pages p ON p.id = q.page_id WHERE q.id = ANY($1)`
	return t.pairs(ctx, q, questionIDs)
}

func (t *pgTx) ChoiceQuestions(ctx context.Context, choiceIDs []int64) (map[int64]int64, error) {
	return t.pairs(ctx, `SELECT id, question_id FROM choices WHERE id = ANY($1)`, choiceIDs)
}

func (t *pgTx) pairs(ctx context.Context, q string, ids []int64) (map[int64]int64, error) {
	rows, err := t.q.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64, len(ids))
	for rows.Next() {
		var k, v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (t *pgTx) ExistingUsers(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	rows, err := t.q.Query(ctx, `SELECT id FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (t *pgTx) CountVotes(ctx context.Context, votingID int64) (map[models.VoteKey]int, error) {
	const q = `SELECT v.question_id, v.choice_id, COUNT(*) FROM votes v
		JOIN questions q ON q.id = v.question_id
		JOIN pages p ON p.id = q.page_id
		WHERE p.voting_id = $1 GROUP BY v.question_id, v.choice_id`
	rows, err := t.q.Query(ctx, q, votingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[models.VoteKey]int)
	for rows.Next() {
		var k models.VoteKey
		var n int
		if err := rows.Scan(&k.QuestionID, &k.ChoiceID, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func (t *pgTx) ListVotes(ctx context.Context, votingID int64) ([]models.VoteDetail, error) {
	const q = `SELECT v.id, v.user_id, v.question_id, v.choice_id, u.username, q.title, c.name FROM votes v
		JOIN users u ON u.id = v.user_id
		JOIN questions q ON q.id = v.question_id
		JOIN choices c ON c.id = v.choice_id
		JOIN pages p ON p.id = q.page_id
		WHERE p.voting_id = $1 ORDER BY v.id`
	rows, err := t.q.Query(ctx, q, votingID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.VoteDetail, error) {
		var d models.VoteDetail
		err := row.Scan(&d.ID, &d.UserID, &d.QuestionID, &d.ChoiceID, &d.Username, &d.QuestionTitle, &d.ChoiceName)
		return d, err
	})
}

const userColumns = `id, username, email, password_hash, created_at`

func (t *pgTx) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (t *pgTx) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return t.scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (t *pgTx) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return t.scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (t *pgTx) InsertVoting(ctx context.Context, v *models.Voting) error {
	const q = `INSERT INTO votings (title, description, author_id, is_submit, question_answer_pairs, hidden_pages)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	return t.q.QueryRow(ctx, q, v.Title, v.Description, v.AuthorID, v.IsSubmit, v.QuestionAnswerPairs, v.HiddenPages).Scan(&v.ID)
}

func (t *pgTx) UpdateVoting(ctx context.Context, v *models.Voting) error {
	const q = `UPDATE votings SET title = $1, description = $2, is_submit = $3, question_answer_pairs = $4, hidden_pages = $5
		WHERE id = $6`
	tag, err := t.q.Exec(ctx, q, v.Title, v.Description, v.IsSubmit, v.QuestionAnswerPairs, v.HiddenPages, v.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteVoting(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM votings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeletePages(ctx context.Context, votingID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM pages WHERE voting_id = $1`, votingID)
	return err
}

func (t *pgTx) InsertPage(ctx context.Context, p *models.Page) error {
	const q = `INSERT INTO pages (voting_id, title, page_order) VALUES ($1, $2, $3) RETURNING id`
	return missingParent(t.q.QueryRow(ctx, q, p.VotingID, p.Title, p.Order).Scan(&p.ID))
}

func (t *pgTx) InsertQuestion(ctx context.Context, q *models.Question) error {
	const sql = `INSERT INTO questions (page_id, title, type) VALUES ($1, $2, $3) RETURNING id`
	return missingParent(t.q.QueryRow(ctx, sql, q.PageID, q.Title, q.Type).Scan(&q.ID))
}

func (t *pgTx) InsertChoice(ctx context.Context, c *models.Choice) error {
	const q = `INSERT INTO choices (question_id, name) VALUES ($1, $2) RETURNING id`
	return missingParent(t.q.QueryRow(ctx, q, c.QuestionID, c.Name).Scan(&c.ID))
}

// InsertVotes writes the batch with a single multi-row INSERT.
func (t *pgTx) InsertVotes(ctx context.Context, votes []models.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	users := make([]int64, len(votes))
	questions := make([]int64, len(votes))
	choices := make([]int64, len(votes))
	for i, v := range votes {
		users[i], questions[i], choices[i] = v.UserID, v.QuestionID, v.ChoiceID
	}
	const q = `INSERT INTO votes (user_id, question_id, choice_id)
		SELECT u, q, c FROM unnest($1::bigint[], $2::bigint[], $3::bigint[]) WITH ORDINALITY AS t(u, q, c, n)
		ORDER BY n RETURNING id`
	rows, err := t.q.Query(ctx, q, users, questions, choices)
	if err != nil {
		return missingParent(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return missingParent(err)
	}
	if len(ids) != len(votes) {
		return fmt.Errorf("insert votes: wrote %d of %d rows", len(ids), len(votes))
	}
	assignVoteIDs(votes, ids)
	return nil
}

// assignVoteIDs maps generated ids back onto the batch. RETURNING has no
// defined order, but the id sequence is drawn in insertion order, so the
// ascending ids line up with the entries.
func assignVoteIDs(votes []models.Vote, ids []int64) {
	slices.Sort(ids)
	for i := range votes {
		votes[i].ID = ids[i]
	}
}

func (t *pgTx) InsertUser(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := t.q.QueryRow(ctx, q, u.Username, u.Email, u.Password).Scan(&u.ID, &u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}
