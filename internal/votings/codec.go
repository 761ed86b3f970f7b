package votings

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
)

// Field limits, mirrored by the column sizes in 001_schema.sql.
const (
	MaxTitleLen        = 100
	MaxQuestionTypeLen = 50
	MaxChoiceNameLen   = 150
)

// VotingPayload is the body of create and replace requests. Ids and author in
// the body are ignored.
type VotingPayload struct {
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	IsSubmit            *bool         `json:"is_submit"`
	QuestionAnswerPairs *string       `json:"question_answer_pairs"`
	HiddenPages         *string       `json:"hidden_pages"`
	Pages               []PagePayload `json:"pages" validate:"dive"`
}

// PagePayload is one page of a VotingPayload.
type PagePayload struct {
	Title     string            `json:"title" validate:"required,max=100"`
	Order     int               `json:"order"`
	Questions []QuestionPayload `json:"questions" validate:"dive"`
}

// QuestionPayload is one question of a page. An empty Type means "checkbox".
type QuestionPayload struct {
	Title   string          `json:"title" validate:"required,max=100"`
	Type    string          `json:"type" validate:"omitempty,max=50"`
	Choices []ChoicePayload `json:"choices" validate:"dive"`
}

// ChoicePayload is one answer option.
type ChoicePayload struct {
	Name string `json:"name" validate:"required,max=150"`
}

// VotingRepresentation is the nested response shape of a voting tree.
type VotingRepresentation struct {
	ID                  int64                `json:"id"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Author              int64                `json:"author"`
	IsSubmit            bool                 `json:"is_submit"`
	QuestionAnswerPairs string               `json:"question_answer_pairs"`
	HiddenPages         string               `json:"hidden_pages"`
	Pages               []PageRepresentation `json:"pages"`
}

type PageRepresentation struct {
	ID        int64                    `json:"id"`
	Order     int                      `json:"order"`
	Title     string                   `json:"title"`
	Questions []QuestionRepresentation `json:"questions"`
}

type QuestionRepresentation struct {
	ID      int64                  `json:"id"`
	Title   string                 `json:"title"`
	Type    string                 `json:"type"`
	Choices []ChoiceRepresentation `json:"choices"`
}

type ChoiceRepresentation struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses a create payload. Title and description are required; every
// other scalar falls back to its default.
func Decode(data []byte) (*models.Tree, error) {
	return decode(data, false)
}

// DecodeUpdate parses a replace payload. Scalar fields are optional; the ones
// present are validated and flagged in Tree.Set. A missing pages key yields a
// tree without pages.
func DecodeUpdate(data []byte) (*models.Tree, error) {
	return decode(data, true)
}

func decode(data []byte, partial bool) (*models.Tree, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, jsonError(err)
	}
	var p VotingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, jsonError(err)
	}
	trimPayload(&p)

	var fields []domainerrors.FieldError
	if err := validate.Struct(&p); err != nil {
		fields = append(fields, fieldErrors(err)...)
	}

	tree := &models.Tree{}
	_, hasTitle := keys["title"]
	if !partial || hasTitle {
		tree.Set |= models.FieldTitle
		fields = append(fields, checkVar("title", p.Title, fmt.Sprintf("required,max=%d", MaxTitleLen))...)
	}
	_, hasDescription := keys["description"]
	if !partial || hasDescription {
		tree.Set |= models.FieldDescription
		fields = append(fields, checkVar("description", p.Description, "required")...)
	}
	if len(fields) > 0 {
		return nil, &domainerrors.ValidationError{Fields: fields}
	}

	tree.Voting = models.Voting{Title: p.Title, Description: p.Description}
	if !partial || p.IsSubmit != nil {
		tree.Set |= models.FieldIsSubmit
		if p.IsSubmit != nil {
			tree.Voting.IsSubmit = *p.IsSubmit
		}
	}
	if !partial || p.QuestionAnswerPairs != nil {
		tree.Set |= models.FieldQuestionAnswerPairs
		if p.QuestionAnswerPairs != nil {
			tree.Voting.QuestionAnswerPairs = *p.QuestionAnswerPairs
		}
	}
	if !partial || p.HiddenPages != nil {
		tree.Set |= models.FieldHiddenPages
		if p.HiddenPages != nil {
			tree.Voting.HiddenPages = *p.HiddenPages
		}
	}

	var pageID, questionID, choiceID int64
	for _, pp := range p.Pages {
		pageID++
		tree.Pages = append(tree.Pages, models.Page{ID: pageID, Title: pp.Title, Order: pp.Order})
		for _, qp := range pp.Questions {
			questionID++
			typ := qp.Type
			if typ == "" {
				typ = models.DefaultQuestionType
			}
			tree.Questions = append(tree.Questions, models.Question{ID: questionID, PageID: pageID, Title: qp.Title, Type: typ})
			for _, cp := range qp.Choices {
				choiceID++
				tree.Choices = append(tree.Choices, models.Choice{ID: choiceID, QuestionID: questionID, Name: cp.Name})
			}
		}
	}
	return tree, nil
}

// Encode renders a tree as its nested representation, children in insertion order.
func Encode(tree *models.Tree) VotingRepresentation {
	v := tree.Voting
	out := VotingRepresentation{
		ID:                  v.ID,
		Title:               v.Title,
		Description:         v.Description,
		Author:              v.AuthorID,
		IsSubmit:            v.IsSubmit,
		QuestionAnswerPairs: v.QuestionAnswerPairs,
		HiddenPages:         v.HiddenPages,
		Pages:               make([]PageRepresentation, 0, len(tree.Pages)),
	}
	for _, p := range tree.Pages {
		pr := PageRepresentation{ID: p.ID, Order: p.Order, Title: p.Title, Questions: []QuestionRepresentation{}}
		for _, q := range tree.QuestionsOf(p.ID) {
			qr := QuestionRepresentation{ID: q.ID, Title: q.Title, Type: q.Type, Choices: []ChoiceRepresentation{}}
			for _, c := range tree.ChoicesOf(q.ID) {
				qr.Choices = append(qr.Choices, ChoiceRepresentation{ID: c.ID, Name: c.Name})
			}
			pr.Questions = append(pr.Questions, qr)
		}
		out.Pages = append(out.Pages, pr)
	}
	return out
}

func trimPayload(p *VotingPayload) {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	for i := range p.Pages {
		pp := &p.Pages[i]
		pp.Title = strings.TrimSpace(pp.Title)
		for j := range pp.Questions {
			qp := &pp.Questions[j]
			qp.Title = strings.TrimSpace(qp.Title)
			qp.Type = strings.TrimSpace(qp.Type)
			for k := range qp.Choices {
				qp.Choices[k].Name = strings.TrimSpace(qp.Choices[k].Name)
			}
		}
	}
}

func checkVar(field, value, tag string) []domainerrors.FieldError {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domainerrors.FieldError{{Field: field, Message: err.Error()}}
	}
	out := make([]domainerrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, domainerrors.FieldError{Field: field, Message: describe(fe)})
	}
	return out
}

func fieldErrors(err error) []domainerrors.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domainerrors.FieldError{{Message: err.Error()}}
	}
	out := make([]domainerrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "VotingPayload.pages[0].title"; drop the root type.
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out = append(out, domainerrors.FieldError{Field: ns, Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("ensure this field has no more than %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func jsonError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return domainerrors.Invalid("", "expected a JSON object")
		}
		return domainerrors.Invalid(typeErr.Field, "expected "+typeErr.Type.String())
	}
	return domainerrors.Invalid("", "malformed JSON: "+err.Error())
}
