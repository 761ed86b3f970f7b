package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/surapp/backend/internal/auth"
	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/exports"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
	"github.com/surapp/backend/internal/votes"
	"github.com/surapp/backend/internal/votings"
)

type envelope struct {
	Success bool                      `json:"success"`
	Data    json.RawMessage           `json:"data"`
	Error   string                    `json:"error"`
	Details []domainerrors.FieldError `json:"details"`
}

type client struct {
	t      *testing.T
	router *gin.Engine
}

func newClient(t *testing.T) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	jwtService := auth.NewJWTService("test-secret", 1)
	denylist := auth.NewMemoryDenylist()

	engine := votings.NewEngine(st, nil, nil)
	router := NewRouter(Deps{
		JWT:      jwtService,
		Denylist: denylist,
		Auth:     auth.NewHandler(auth.NewRepository(st), jwtService, denylist, nil),
		Votings:  votings.NewHandler(engine, nil),
		Votes:    votes.NewHandler(votes.NewValidator(st, true, nil, nil), votes.NewAggregator(st, nil, nil), nil),
		Exports:  exports.NewHandler(exports.NewRenderer(st), nil, nil, nil),
	})
	return &client{t: t, router: router}
}

func (c *client) do(method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Code != http.StatusNoContent {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (c *client) register(username string) (string, int64) {
	c.t.Helper()
	w, env := c.do(http.MethodPost, "/api/register/", "", fmt.Sprintf(`{"username": %q, "email": "%s@example.com", "password": "secret1"}`, username, username))
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())
	var tok auth.TokenResponse
	require.NoError(c.t, json.Unmarshal(env.Data, &tok))
	return tok.Token, tok.UserID
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

const lunchPoll = `{"title": "Lunch Poll", "description": "Where do we eat?", "pages": [{"title": "P1", "questions": [
	{"title": "Pizza or Salad?", "choices": [{"name": "Pizza"}, {"name": "Salad"}]}
]}]}`

func TestHealth(t *testing.T) {
	c := newClient(t)
	w, env := c.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestAuthFlow(t *testing.T) {
	c := newClient(t)
	token, _ := c.register("alice")

	w, env := c.do(http.MethodPost, "/api/register/", "", `{"username": "alice", "password": "secret1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEmpty(t, env.Details)
	assert.Equal(t, "username", env.Details[0].Field)

	w, _ = c.do(http.MethodPost, "/api/login/", "", `{"username": "alice", "password": "nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, env = c.do(http.MethodPost, "/api/login/", "", `{"username": "alice", "password": "secret1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeData[auth.TokenResponse](t, env).Token)

	w, _ = c.do(http.MethodGet, "/api/token/validate/", token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = c.do(http.MethodPost, "/api/logout/", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	w, env = c.do(http.MethodGet, "/api/token/validate/", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token has been revoked", env.Error)
}

func TestVotingLifecycle(t *testing.T) {
	c := newClient(t)
	alice, aliceID := c.register("alice")
	bob, bobID := c.register("bob")

	w, _ := c.do(http.MethodPost, "/create/voting/", "", lunchPoll)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := c.do(http.MethodPost, "/create/voting/", alice, lunchPoll)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeData[votings.VotingRepresentation](t, env)
	assert.Equal(t, aliceID, created.Author)
	require.Len(t, created.Pages, 1)
	question := created.Pages[0].Questions[0]
	assert.Equal(t, models.DefaultQuestionType, question.Type)
	id := fmt.Sprint(created.ID)

	w, env = c.do(http.MethodGet, "/api/response-voting/"+id+"/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decodeData[votings.VotingRepresentation](t, env))

	w, _ = c.do(http.MethodGet, "/api/response-voting/abc/", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = c.do(http.MethodPut, "/update/voting/"+id+"/", bob, `{"title": "mine now"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = c.do(http.MethodPut, "/update/voting/9999/", alice, `{"title": "x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, env = c.do(http.MethodPatch, "/update/voting/"+id+"/", alice, `{"title": ""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title", env.Details[0].Field)

	ballot := fmt.Sprintf(`[{"user": %d, "question": %d, "choice": %d}, {"user": %d, "question": %d, "choice": %d}]`,
		aliceID, question.ID, question.Choices[0].ID, bobID, question.ID, question.Choices[0].ID)
	w, env = c.do(http.MethodPost, "/api/answer-voting/"+id+"/", "", ballot)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, decodeData[[]models.Vote](t, env), 2)

	w, env = c.do(http.MethodGet, "/api/poll-statistic/"+id+"/", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	tally := decodeData[[]models.QuestionTally](t, env)
	require.Len(t, tally, 1)
	assert.Equal(t, 2, tally[0].Choices[0].VoteCount)
	assert.Equal(t, 0, tally[0].Choices[1].VoteCount)

	w, env = c.do(http.MethodGet, "/api/detail-statistic/"+id+"/", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]models.VoteDetail](t, env), 2)

	w, env = c.do(http.MethodPatch, "/api/submit/"+id+"/", alice, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env = c.do(http.MethodPatch, "/api/submit/"+id+"/", alice, `{"is_submit": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeData[votings.VotingRepresentation](t, env).IsSubmit)

	w, env = c.do(http.MethodPatch, "/api/add_logic/"+id+"/", alice, `{"hidden_pages": "[2]"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[2]", decodeData[votings.VotingRepresentation](t, env).HiddenPages)
	w, env = c.do(http.MethodPatch, "/api/add_logic/"+id+"/", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[2]", decodeData[votings.VotingRepresentation](t, env).HiddenPages)
	w, _ = c.do(http.MethodPatch, "/api/add_logic/"+id+"/", alice, "[")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = c.do(http.MethodPatch, "/api/add_logic/"+id+"/", bob, `{"hidden_pages": "[]"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = c.do(http.MethodGet, fmt.Sprintf("/show_votings/%d/", aliceID), alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]votings.VotingRepresentation](t, env), 1)
	w, _ = c.do(http.MethodGet, fmt.Sprintf("/show_votings/%d/", aliceID), bob, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = c.do(http.MethodDelete, "/delete/voting/"+id+"/", bob, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = c.do(http.MethodDelete, "/delete/voting/"+id+"/", alice, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = c.do(http.MethodGet, "/api/response-voting/"+id+"/", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, env = c.do(http.MethodGet, "/api/poll-statistic/"+id+"/", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestSubmitVotesErrors(t *testing.T) {
	c := newClient(t)
	alice, aliceID := c.register("alice")

	_, env := c.do(http.MethodPost, "/create/voting/", alice, `{"title": "empty", "description": "d"}`)
	empty := decodeData[votings.VotingRepresentation](t, env)
	w, env := c.do(http.MethodPost, fmt.Sprintf("/api/answer-voting/%d/", empty.ID), "", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domainerrors.ErrEmptyVoting.Error(), env.Error)

	_, env = c.do(http.MethodPost, "/create/voting/", alice, lunchPoll)
	full := decodeData[votings.VotingRepresentation](t, env)
	w, env = c.do(http.MethodPost, fmt.Sprintf("/api/answer-voting/%d/", full.ID), "", `{"user": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, env.Details)

	foreign := fmt.Sprintf(`[{"user": %d, "question": 424242, "choice": 1}]`, aliceID)
	w, env = c.do(http.MethodPost, fmt.Sprintf("/api/answer-voting/%d/", full.ID), "", foreign)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "[0].question", env.Details[0].Field)

	w, _ = c.do(http.MethodPost, "/api/answer-voting/9999/", "", foreign)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExports(t *testing.T) {
	c := newClient(t)
	alice, aliceID := c.register("alice")
	_, env := c.do(http.MethodPost, "/create/voting/", alice, lunchPoll)
	v := decodeData[votings.VotingRepresentation](t, env)
	q := v.Pages[0].Questions[0]
	ballot := fmt.Sprintf(`[{"user": %d, "question": %d, "choice": %d}]`, aliceID, q.ID, q.Choices[1].ID)
	w, _ := c.do(http.MethodPost, fmt.Sprintf("/api/answer-voting/%d/", v.ID), "", ballot)
	require.Equal(t, http.StatusCreated, w.Code)

	want := []string{"alice", fmt.Sprint(q.ID), "Pizza or Salad?", fmt.Sprint(q.Choices[1].ID), "Salad"}

	w, _ = c.do(http.MethodGet, fmt.Sprintf("/api/export-votes/%d/", v.ID), alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), fmt.Sprintf("votes_voting_%d.xlsx", v.ID))
	book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(exports.VotesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, exports.VotesHeader, rows[0])
	assert.Equal(t, want, rows[1])

	w, _ = c.do(http.MethodGet, fmt.Sprintf("/api/export-votes/%d/?format=csv", v.ID), alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), fmt.Sprintf("votes_voting_%d.csv", v.ID))
	rows, err = csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, want, rows[1])

	w, _ = c.do(http.MethodGet, fmt.Sprintf("/api/export-votes/%d/?format=pdf", v.ID), alice, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = c.do(http.MethodGet, fmt.Sprintf("/api/export-voting-json/%d/", v.ID), alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), fmt.Sprintf("voting_%d.json", v.ID))
	var exported votings.VotingRepresentation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Equal(t, v, exported)

	w, _ = c.do(http.MethodGet, "/api/export-voting-json/9999/", alice, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = c.do(http.MethodPost, fmt.Sprintf("/api/exports/%d/", v.ID), alice, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
