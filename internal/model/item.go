package model

import "time"

// Item is a reported lost or found object.
type Item struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	ReporterName  string    `json:"reporter_name"`
	ReporterPhone string    `json:"reporter_phone"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Place         string    `json:"place"`
	OccurredAt    string    `json:"occurred_at"`
	Category      Category  `json:"category"`
	Status        Status    `json:"status"`
	ImageRef      string    `json:"image_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasImage reports whether the item references a stored object.
func (i *Item) HasImage() bool {
	return i.ImageRef != ""
}

// Status is the lifecycle state of an item.
type Status string

// Item statuses.
const (
	StatusLost      Status = "lost"
	StatusFound     Status = "found"
	StatusCompleted Status = "completed"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusLost, StatusFound, StatusCompleted}

// ParseStatus validates a raw status value.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusLost, StatusFound, StatusCompleted:
		return Status(s), true
	}
	return "", false
}

// Category separates everyday reports from urgent ones.
type Category string

// Item categories.
const (
	CategoryNormal    Category = "normal"
	CategoryEmergency Category = "emergency"
)

// ParseCategory validates a raw category value.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryNormal, CategoryEmergency:
		return Category(s), true
	}
	return "", false
}

// OccurredLayout is the calendar date format used for occurred_at.
const OccurredLayout = "2006-01-02"
