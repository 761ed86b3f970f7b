package models

// QuestionTally is the aggregated vote count for every choice of a question.
type QuestionTally struct {
	QuestionID    int64         `json:"question_id"`
	QuestionTitle string        `json:"question_title"`
	QuestionType  string        `json:"question_type"`
	Choices       []ChoiceTally `json:"choices"`
}

// ChoiceTally is the number of votes for one choice.
type ChoiceTally struct {
	ChoiceID   int64  `json:"choice_id"`
	ChoiceName string `json:"choice_title"`
	VoteCount  int    `json:"votes_count"`
}
