package models

import "time"

// User is a survey participant. Users are name-only and never updated.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" bson:"-" json:"_id"`
	Name      string    `gorm:"size:100;not null" bson:"name" json:"name"`
	Timestamp time.Time `gorm:"column:created_at;not null;index" bson:"timestamp" json:"timestamp"`
}

type RegisterRequest struct {
	Name string `json:"name"`
}

// UserSummary is what registration hands back to the client
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name}
}
