package models

// Vote records one user selecting one choice for one question.
type Vote struct {
	ID         int64 `json:"-"`
	UserID     int64 `json:"user"`
	QuestionID int64 `json:"question"`
	ChoiceID   int64 `json:"choice"`
}

// VoteDetail is a vote joined with readable names, used by exports.
type VoteDetail struct {
	Vote
	Username      string `json:"username"`
	QuestionTitle string `json:"question_title"`
	ChoiceName    string `json:"choice_name"`
}

// VoteKey identifies the (question, choice) pair a vote counts towards.
type VoteKey struct {
	QuestionID int64
	ChoiceID   int64
}
