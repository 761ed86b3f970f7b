package models

// Field flags the scalar Voting fields a payload carried.
type Field uint8

const (
	FieldTitle Field = 1 << iota
	FieldDescription
	FieldIsSubmit
	FieldQuestionAnswerPairs
	FieldHiddenPages

	FieldAll = FieldTitle | FieldDescription | FieldIsSubmit | FieldQuestionAnswerPairs | FieldHiddenPages
)

// Has reports whether f contains every flag in other.
func (f Field) Has(other Field) bool { return f&other == other }

// Tree is a Voting with its descendants stored as flat rows. Every row points at
// its parent by id and rows keep insertion order. A decoded tree that has not
// been persisted yet carries provisional ids that are only unique within it.
type Tree struct {
	Voting    Voting
	Set       Field
	Pages     []Page
	Questions []Question
	Choices   []Choice
}

// QuestionsOf returns the questions of a page in insertion order.
func (t *Tree) QuestionsOf(pageID int64) []Question {
	var out []Question
	for _, q := range t.Questions {
		if q.PageID == pageID {
			out = append(out, q)
		}
	}
	return out
}

// ChoicesOf returns the choices of a question in insertion order.
func (t *Tree) ChoicesOf(questionID int64) []Choice {
	var out []Choice
	for _, c := range t.Choices {
		if c.QuestionID == questionID {
			out = append(out, c)
		}
	}
	return out
}
