package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionExists is returned when a session id is submitted twice.
	ErrSessionExists = errors.New("session already exists")

	// ErrConditionFailed is returned when a conditional update matched the key
	// but not the expected state.
	ErrConditionFailed = errors.New("condition failed")

	// ErrStore marks failures of the backing store itself. Backend errors are
	// wrapped with it so callers can tell them apart from lookup misses.
	ErrStore = errors.New("store error")
)

// FeedPartition is the constant partition discriminator of the guestbook
// listing index. Every entry lives in it.
const FeedPartition = "ALL"

// TimeLayout is the fixed-width UTC layout used for guestbook created_at keys.
// Lexical order of formatted values equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t with TimeLayout in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Status is the lifecycle state of an analysis session.
type Status string

const (
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type Session struct {
	ID          string
	Name        string
	Role        string
	Strengths   string
	Hobbies     string
	Status      Status
	Horizon     *float64 // set when completed
	ErrorReason string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SkillRisk struct {
	SessionID     string  `json:"-"`
	SkillName     string  `json:"skill_name"`
	Category      string  `json:"category"`
	Probability   int     `json:"probability"`
	TimeHorizon   float64 `json:"time_horizon"`
	Justification string  `json:"justification"`
}

type RoadmapStep struct {
	Step     string `json:"step"`
	Duration string `json:"duration"`
}

type CareerCard struct {
	SessionID    string        `json:"-"`
	CardIndex    int           `json:"card_index"`
	ComboFormula string        `json:"combo_formula"`
	Rationale    string        `json:"rationale"`
	Roadmap      []RoadmapStep `json:"roadmap"`
}

// EntryKey is the composite identity of a guestbook entry.
type EntryKey struct {
	EntryID   string `json:"entry_id"`
	CreatedAt string `json:"created_at"`
}

type GuestbookEntry struct {
	EntryID   string           `json:"entry_id"`
	CreatedAt string           `json:"created_at"`
	SessionID string           `json:"session_id"`
	Role      string           `json:"role"`
	Horizon   float64          `json:"horizon"`
	Message   string           `json:"message"`
	Reactions map[string]int64 `json:"reactions"`
}

func (e GuestbookEntry) Key() EntryKey {
	return EntryKey{EntryID: e.EntryID, CreatedAt: e.CreatedAt}
}

// Position is the store's resume marker for the guestbook listing index: the
// key attributes of the last entry returned.
type Position struct {
	Partition string `json:"gsi_pk"`
	CreatedAt string `json:"created_at"`
	EntryID   string `json:"entry_id"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
