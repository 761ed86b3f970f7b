package votings

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
)

const lunchPoll = `{
	"title": "Lunch Poll",
	"description": "Where do we eat?",
	"pages": [{
		"title": "Page 1",
		"order": 1,
		"questions": [{"title": "Place", "choices": [{"name": "A"}, {"name": "B"}]}]
	}]
}`

func fieldsOf(t *testing.T, err error) []domainerrors.FieldError {
	t.Helper()
	var ve *domainerrors.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func hasField(fields []domainerrors.FieldError, name string) bool {
	for _, f := range fields {
		if f.Field == name {
			return true
		}
	}
	return false
}

func TestDecode(t *testing.T) {
	tree, err := Decode([]byte(lunchPoll))
	require.NoError(t, err)

	assert.Equal(t, "Lunch Poll", tree.Voting.Title)
	assert.Equal(t, models.FieldAll, tree.Set)
	assert.False(t, tree.Voting.IsSubmit)
	require.Len(t, tree.Pages, 1)
	assert.Equal(t, 1, tree.Pages[0].Order)
	require.Len(t, tree.Questions, 1)
	assert.Equal(t, models.DefaultQuestionType, tree.Questions[0].Type)
	assert.Equal(t, tree.Pages[0].ID, tree.Questions[0].PageID)
	require.Len(t, tree.Choices, 2)
	assert.Equal(t, []string{"A", "B"}, []string{tree.Choices[0].Name, tree.Choices[1].Name})
}

func TestDecodeMissingNestedCollections(t *testing.T) {
	tree, err := Decode([]byte(`{"title": "t", "description": "d", "pages": [{"title": "p"}]}`))
	require.NoError(t, err)
	require.Len(t, tree.Pages, 1)
	assert.Empty(t, tree.Questions)

	rep := Encode(tree)
	require.Len(t, rep.Pages, 1)
	assert.NotNil(t, rep.Pages[0].Questions)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"questions":[]`)
}

func TestDecodeIgnoresIDsAndAuthor(t *testing.T) {
	tree, err := Decode([]byte(`{"id": 99, "author": 7, "title": "t", "description": "d",
		"pages": [{"id": 50, "title": "p", "questions": [{"id": 60, "title": "q", "choices": [{"id": 70, "name": "c"}]}]}]}`))
	require.NoError(t, err)
	assert.Zero(t, tree.Voting.ID)
	assert.Zero(t, tree.Voting.AuthorID)
	assert.Equal(t, int64(1), tree.Pages[0].ID)
	assert.Equal(t, int64(1), tree.Choices[0].ID)
}

func TestDecodeReportsNestedFieldPath(t *testing.T) {
	body := `{"title": "t", "description": "d", "pages": [{"title": "p", "questions": [
		{"title": "q0", "choices": [{"name": "ok"}]},
		{"title": "q1", "choices": [{"name": "   "}]}
	]}]}`
	_, err := Decode([]byte(body))
	fields := fieldsOf(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "pages[0].questions[1].choices[0].name", fields[0].Field)
	assert.Equal(t, "this field is required", fields[0].Message)
}

func TestDecodeLengthBounds(t *testing.T) {
	ok := strings.Repeat("x", MaxTitleLen)
	_, err := Decode([]byte(`{"title": "` + ok + `", "description": "d"}`))
	require.NoError(t, err)

	tooLong := strings.Repeat("x", MaxTitleLen+1)
	_, err = Decode([]byte(`{"title": "` + tooLong + `", "description": "d"}`))
	assert.True(t, hasField(fieldsOf(t, err), "title"))

	longType := strings.Repeat("t", MaxQuestionTypeLen+1)
	_, err = Decode([]byte(`{"title": "t", "description": "d", "pages": [{"title": "p", "questions": [{"title": "q", "type": "` + longType + `"}]}]}`))
	assert.True(t, hasField(fieldsOf(t, err), "pages[0].questions[0].type"))

	longName := strings.Repeat("n", MaxChoiceNameLen+1)
	_, err = Decode([]byte(`{"title": "t", "description": "d", "pages": [{"title": "p", "questions": [{"title": "q", "choices": [{"name": "` + longName + `"}]}]}]}`))
	assert.True(t, hasField(fieldsOf(t, err), "pages[0].questions[0].choices[0].name"))
}

func TestDecodeRequiresTitleAndDescription(t *testing.T) {
	_, err := Decode([]byte(`{"title": "  "}`))
	fields := fieldsOf(t, err)
	assert.True(t, hasField(fields, "title"))
	assert.True(t, hasField(fields, "description"))
}

func TestDecodeUpdateOnlyFlagsPresentFields(t *testing.T) {
	tree, err := DecodeUpdate([]byte(`{"is_submit": true}`))
	require.NoError(t, err)
	assert.True(t, tree.Set.Has(models.FieldIsSubmit))
	assert.False(t, tree.Set.Has(models.FieldTitle))
	assert.False(t, tree.Set.Has(models.FieldDescription))
	assert.True(t, tree.Voting.IsSubmit)
	assert.Empty(t, tree.Pages)

	_, err = DecodeUpdate([]byte(`{"title": ""}`))
	assert.True(t, hasField(fieldsOf(t, err), "title"))
}

func TestDecodeMalformedInput(t *testing.T) {
	cases := map[string]string{
		"syntax":     `{"title": `,
		"not object": `[1, 2]`,
		"wrong type": `{"title": 5, "description": "d"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			fieldsOf(t, err)
		})
	}

	_, err := Decode([]byte(`{"title": 5, "description": "d"}`))
	assert.Equal(t, "title", fieldsOf(t, err)[0].Field)
}

func TestDecodeTrimsStrings(t *testing.T) {
	tree, err := Decode([]byte(`{"title": "  Lunch  ", "description": " d ", "pages": [{"title": " p ", "questions": [{"title": " q ", "type": "  ", "choices": [{"name": " A "}]}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Lunch", tree.Voting.Title)
	assert.Equal(t, "p", tree.Pages[0].Title)
	assert.Equal(t, models.DefaultQuestionType, tree.Questions[0].Type)
	assert.Equal(t, "A", tree.Choices[0].Name)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tree, err := Decode([]byte(lunchPoll))
	require.NoError(t, err)

	raw, err := json.Marshal(Encode(tree))
	require.NoError(t, err)
	again, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, tree, again)
}
