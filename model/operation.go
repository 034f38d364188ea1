package model

import (
	"slices"
	"time"
)

type OperationStatus string

const (
	StatusPending        OperationStatus = "pending"
	StatusRunning        OperationStatus = "running"
	StatusPartialSuccess OperationStatus = "partial_success"
	StatusSuccess        OperationStatus = "success"
	StatusFailed         OperationStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s OperationStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusPartialSuccess || s == StatusFailed
}

type OperationKind string

const (
	KindUserContent OperationKind = "user-content-download"
	KindPosts       OperationKind = "posts-download"
	KindLivestream  OperationKind = "livestream-download"
)

var allowedTransitions = map[OperationStatus][]OperationStatus{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusSuccess, StatusPartialSuccess, StatusFailed},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to OperationStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	return slices.Contains(allowedTransitions[from], to)
}

// OperationError is the top-level cause of a failed or partially successful job.
type OperationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// ItemError records one item that could not be downloaded.
type ItemError struct {
	Index   int    `json:"index"`
	ItemID  string `json:"item_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Operation struct {
	ID     string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"operation_id"`
	Kind   OperationKind   `gorm:"column:kind;type:varchar(32);index;not null" json:"kind"`
	UserID string          `gorm:"column:user_id;type:varchar(128);index;not null" json:"user_id"`
	Status OperationStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Stage  string          `gorm:"column:stage;type:varchar(20)" json:"stage,omitempty"` // livestream capture state

	Progress        int              `gorm:"column:progress;default:0" json:"progress"`
	Counts          map[Category]int `gorm:"column:counts;serializer:json" json:"counts"`
	TotalDownloaded int              `gorm:"column:total_downloaded;default:0" json:"total_downloaded"`
	TotalItems      *int             `gorm:"column:total_items" json:"total_items"`

	Error        *OperationError `gorm:"column:error;serializer:json" json:"error,omitempty"`
	ItemErrors   []ItemError     `gorm:"column:item_errors;serializer:json" json:"item_errors,omitempty"`
	ResumeCursor string          `gorm:"column:resume_cursor;type:varchar(64)" json:"resume_cursor,omitempty"`
	DownloadPath string          `gorm:"column:download_path;type:varchar(512)" json:"download_path,omitempty"`
	Segments     int             `gorm:"column:segments;default:0" json:"segments,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName returns the database table name.
func (Operation) TableName() string {
	return "operation"
}

// NewCounts returns a counter map with every category at zero.
func NewCounts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = 0
	}
	return counts
}

// Clone returns a deep copy so callers never share mutable state with the registry.
func (o *Operation) Clone() Operation {
	out := *o
	out.Counts = make(map[Category]int, len(o.Counts))
	for k, v := range o.Counts {
		out.Counts[k] = v
	}
	if o.TotalItems != nil {
		v := *o.TotalItems
		out.TotalItems = &v
	}
	if o.Error != nil {
		e := *o.Error
		out.Error = &e
	}
	if o.ItemErrors != nil {
		out.ItemErrors = slices.Clone(o.ItemErrors)
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// CountSum returns the sum of all per-category counters.
func (o *Operation) CountSum() int {
	sum := 0
	for _, v := range o.Counts {
		sum += v
	}
	return sum
}
