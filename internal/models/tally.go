package models

// Snapshot maps question id -> option label -> number of responses.
// It is always derived from stored responses and replaced wholesale by clients.
type Snapshot map[string]map[string]int

// TallyRow is one grouped count as returned by a store-side aggregation.
type TallyRow struct {
	QuestionID     string `gorm:"column:question_id" bson:"questionId"`
	SelectedOption string `gorm:"column:selected_option" bson:"selectedOption"`
	Count          int    `gorm:"column:count" bson:"count"`
}
