package models

import "time"

// Teacher is the public profile of a teacher account.
type Teacher struct {
	ID         string    `db:"id" json:"id"`
	Email      string    `db:"email" json:"email"`
	FullName   string    `db:"full_name" json:"full_name"`
	Department string    `db:"department" json:"department"`
	Subject    string    `db:"subject" json:"subject"`
	Active     bool      `db:"active" json:"active"`
	InvitedAt  time.Time `db:"invited_at" json:"invited_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search     string
	Department string
	Subject    string
	Page       int
	PageSize   int
}

// InviteTeacherRequest is the admin payload for onboarding a teacher.
type InviteTeacherRequest struct {
	Email      string `json:"email" validate:"required,email"`
	FullName   string `json:"full_name" validate:"required,min=2,max=120"`
	Department string `json:"department" validate:"max=120"`
	Subject    string `json:"subject" validate:"max=120"`
}

// InviteTeacherResult reports the invited teacher.
type InviteTeacherResult struct {
	Teacher     Teacher `json:"teacher"`
	UserCreated bool    `json:"user_created"`
}

// TeacherRemovalResult reports the teacher-removal cascade.
type TeacherRemovalResult struct {
	TeacherID string `json:"teacher_id"`
	Cancelled int    `json:"cancelled"`
}
