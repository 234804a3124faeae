package models

import (
	"time"

	"github.com/lib/pq"
)

// Assignment represents a persisted assignment row.
type Assignment struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	Preview        string         `db:"preview" json:"preview"`
	Attachments    AttachmentList `db:"attachments" json:"attachments,omitempty"`
	ImageURL       *string        `db:"image_url" json:"image_url,omitempty"`
	AdmissionYears pq.StringArray `db:"admission_years" json:"admission_years"`
	Deadline       time.Time      `db:"deadline" json:"deadline"`
	MaxScore       *int           `db:"max_score" json:"max_score,omitempty"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	Lifecycle
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateAssignmentRequest is the payload for publishing an assignment.
type CreateAssignmentRequest struct {
	Title          string         `json:"title" validate:"required,min=3,max=200"`
	Description    string         `json:"description" validate:"required"`
	AdmissionYears []string       `json:"admission_years" validate:"required,min=1,dive,len=4"`
	Deadline       time.Time      `json:"deadline" validate:"required"`
	MaxScore       *int           `json:"max_score,omitempty" validate:"omitempty,gt=0"`
	ImageURL       *string        `json:"image_url,omitempty" validate:"omitempty,url"`
	Attachments    AttachmentList `json:"attachments,omitempty"`
}

// UpdateAssignmentRequest carries partial edits to an assignment.
type UpdateAssignmentRequest struct {
	Title          *string        `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Description    *string        `json:"description,omitempty"`
	AdmissionYears []string       `json:"admission_years,omitempty" validate:"omitempty,min=1,dive,len=4"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	MaxScore       *int           `json:"max_score,omitempty" validate:"omitempty,gt=0"`
	ImageURL       *string        `json:"image_url,omitempty" validate:"omitempty,url"`
	Attachments    AttachmentList `json:"attachments,omitempty"`
}

// AssignmentFilter narrows assignment listings.
type AssignmentFilter struct {
	CreatedBy       string
	AdmissionYear   string
	DueAfter        *time.Time
	IncludeArchived bool
	Page            int
	PageSize        int
}
