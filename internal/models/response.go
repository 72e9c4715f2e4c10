package models

import "time"

// Response is one persisted answer: a user picking an option for a question.
// UserID references a User but does not own it.
type Response struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" bson:"-" json:"_id"`
	UserID         string    `gorm:"not null;index" bson:"userId" json:"userId"`
	UserName       string    `gorm:"not null" bson:"userName" json:"userName"`
	QuestionID     string    `gorm:"not null;index:idx_question_option,priority:1" bson:"questionId" json:"questionId"`
	SelectedOption string    `gorm:"not null;index:idx_question_option,priority:2" bson:"selectedOption" json:"selectedOption"`
	Timestamp      time.Time `gorm:"column:created_at;not null;index" bson:"timestamp" json:"timestamp"`
}

type SubmitRequest struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

// Answers maps question id to the selected option.
type Answers map[string]string

type SubmitAllRequest struct {
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	Answers  Answers `json:"answers"`
}

// ResponseSummary is the trimmed record returned from a single submission
type ResponseSummary struct {
	ID             string `json:"id"`
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

func (r Response) Summary() ResponseSummary {
	return ResponseSummary{
		ID:             r.ID,
		QuestionID:     r.QuestionID,
		SelectedOption: r.SelectedOption,
	}
}
