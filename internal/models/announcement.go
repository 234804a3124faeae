package models

import "time"

// AnnouncementCategory buckets announcements for filtering.
type AnnouncementCategory string

const (
	AnnouncementCategoryGeneral  AnnouncementCategory = "GENERAL"
	AnnouncementCategoryAcademic AnnouncementCategory = "ACADEMIC"
	AnnouncementCategoryEvent    AnnouncementCategory = "EVENT"
	AnnouncementCategoryAlert    AnnouncementCategory = "ALERT"
	AnnouncementCategoryOther    AnnouncementCategory = "OTHER"
)

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID            string               `db:"id" json:"id"`
	Title         string               `db:"title" json:"title"`
	Body          string               `db:"body" json:"body"`
	Preview       string               `db:"preview" json:"preview"`
	Category      AnnouncementCategory `db:"category" json:"category"`
	AdmissionYear *int                 `db:"admission_year" json:"admission_year,omitempty"`
	ImageURL      *string              `db:"image_url" json:"image_url,omitempty"`
	Attachments   AttachmentList       `db:"attachments" json:"attachments,omitempty"`
	CreatedBy     string               `db:"created_by" json:"created_by"`
	Lifecycle
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateAnnouncementRequest is the payload for publishing an announcement.
type CreateAnnouncementRequest struct {
	Title         string               `json:"title" validate:"required,min=3,max=200"`
	Body          string               `json:"body" validate:"required"`
	Category      AnnouncementCategory `json:"category" validate:"required,announcement_category"`
	AdmissionYear *int                 `json:"admission_year,omitempty"`
	ImageURL      *string              `json:"image_url,omitempty" validate:"omitempty,url"`
	Attachments   AttachmentList       `json:"attachments,omitempty"`
}

// UpdateAnnouncementRequest carries partial edits to an announcement.
type UpdateAnnouncementRequest struct {
	Title         *string               `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Body          *string               `json:"body,omitempty"`
	Category      *AnnouncementCategory `json:"category,omitempty" validate:"omitempty,announcement_category"`
	AdmissionYear *int                  `json:"admission_year,omitempty"`
	ImageURL      *string               `json:"image_url,omitempty" validate:"omitempty,url"`
	Attachments   AttachmentList        `json:"attachments,omitempty"`
}

// AnnouncementFilter allows listing announcements.
type AnnouncementFilter struct {
	Title           string
	CreatedBy       string
	Category        AnnouncementCategory
	AdmissionYear   *int
	TimelineDays    int
	IncludeArchived bool
	Page            int
	PageSize        int
}
