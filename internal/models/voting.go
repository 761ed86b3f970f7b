package models

// DefaultQuestionType is used when a question payload omits its type.
const DefaultQuestionType = "checkbox"

// Voting is the survey aggregate root.
type Voting struct {
	ID                  int64  `json:"id"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	AuthorID            int64  `json:"author"`
	IsSubmit            bool   `json:"is_submit"`
	QuestionAnswerPairs string `json:"question_answer_pairs"` // opaque, stored verbatim
	HiddenPages         string `json:"hidden_pages"`          // opaque, stored verbatim
}

// Page is an ordered section of a voting.
type Page struct {
	ID       int64  `json:"id"`
	VotingID int64  `json:"-"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
}

// Question belongs to a page. Type is a free-form tag.
type Question struct {
	ID     int64  `json:"id"`
	PageID int64  `json:"-"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// Choice is a selectable answer for a question.
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"-"`
	Name       string `json:"name"`
}
