package model

import "time"

type StudentRecord struct {
	StudentID string    `json:"student_id" db:"student_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Section   string    `json:"section,omitempty" db:"section"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (s *StudentRecord) FullName() string {
	return s.FirstName + " " + s.LastName
}
