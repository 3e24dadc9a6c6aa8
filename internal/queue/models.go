package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a candidate.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPublished  Status = "published"
	StatusDrafted    Status = "drafted"
	StatusAutoFailed Status = "auto_failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusPublished,
	StatusDrafted,
	StatusAutoFailed,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied value into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether automatic processing is finished for s.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// SourceKind identifies the upstream generator that produced a candidate.
type SourceKind string

const (
	SourceVideo        SourceKind = "video"
	SourcePressRelease SourceKind = "press_release"
)

// TrustLabel is the policy classification of a candidate's origin.
type TrustLabel string

const (
	TrustSafe   TrustLabel = "safe"
	TrustReview TrustLabel = "review"
	TrustUnsafe TrustLabel = "unsafe"
)

// ParseTrustLabel maps free text to a label. Unrecognised values are treated
// as needing review.
func ParseTrustLabel(value string) TrustLabel {
	switch TrustLabel(strings.ToLower(strings.TrimSpace(value))) {
	case TrustSafe:
		return TrustSafe
	case TrustUnsafe:
		return TrustUnsafe
	default:
		return TrustReview
	}
}

// SourceTrust is derived upstream and read-only here.
type SourceTrust struct {
	Label       TrustLabel
	ImagePolicy string
}

// Candidate is a queued unit of generated content awaiting a decision.
type Candidate struct {
	ID           int64
	Title        string
	SourceKind   SourceKind
	SourceRef    string
	Make         string
	Model        string
	Trim         string
	QualityScore float64
	SpecsJSON    string
	Tags         []string
	Category     string
	ImageURL     string
	Trust        SourceTrust

	Status        Status
	AttemptCount  int
	LastAttemptAt *time.Time
	LastError     string
	Note          string
	NeedsReview   bool
	ReviewReason  string
	PublishedRef  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasImage reports whether the candidate already carries an image.
func (c *Candidate) HasImage() bool {
	return strings.TrimSpace(c.ImageURL) != ""
}

// Snapshot captures the fields a decision record preserves.
func (c *Candidate) Snapshot() CandidateSnapshot {
	return CandidateSnapshot{
		Title:        c.Title,
		SourceKind:   c.SourceKind,
		QualityScore: c.QualityScore,
		TrustLabel:   c.Trust.Label,
		HasImage:     c.HasImage(),
		Tags:         append([]string(nil), c.Tags...),
		Category:     c.Category,
		AttemptCount: c.AttemptCount,
	}
}

// Label returns a short identifier for logs and notifications.
func (c *Candidate) Label() string {
	if title := strings.TrimSpace(c.Title); title != "" {
		return title
	}
	return fmt.Sprintf("candidate %d", c.ID)
}

// Settings is one versioned snapshot of the admission settings record.
type Settings struct {
	Version                 int64
	Enabled                 bool
	DraftMode               bool
	MinQuality              float64
	HourlyCap               int
	DailyCap                int
	PublishedToday          int
	CounterDay              string
	RequireSafeSource       bool
	RequireImage            bool
	AutoAttachImage         bool
	UnpublishOnImageFailure bool
	CooldownDays            int
	MaxAttempts             int
	BackoffMinutes          []int
	FlagExactDuplicates     bool
	UpdatedAt               time.Time
}

// Cooldown is the same-entity suppression window.
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownDays) * 24 * time.Hour
}

// BackoffSchedule converts BackoffMinutes to durations.
func (s Settings) BackoffSchedule() []time.Duration {
	steps := make([]time.Duration, 0, len(s.BackoffMinutes))
	for _, minutes := range s.BackoffMinutes {
		steps = append(steps, time.Duration(minutes)*time.Minute)
	}
	return steps
}

// RequiresExistingImage is true when a candidate must arrive with an image
// because nothing will attach one after publishing.
func (s Settings) RequiresExistingImage() bool {
	return s.RequireImage && !s.AutoAttachImage
}

// PublishedRef records one item the publisher created.
type PublishedRef struct {
	ID            string
	CandidateID   int64
	SourceRef     string
	Make          string
	Model         string
	Trim          string
	Title         string
	URL           string
	Draft         bool
	CreatedAt     time.Time
	UnpublishedAt *time.Time
}

// Decision tags one terminal per-candidate outcome.
type Decision string

const (
	DecisionPublished        Decision = "published"
	DecisionDrafted          Decision = "drafted"
	DecisionSkippedSafety    Decision = "skipped_safety"
	DecisionSkippedDuplicate Decision = "skipped_duplicate"
	DecisionSkippedNoImage   Decision = "skipped_no_image"
	DecisionFailed           Decision = "failed"
)

// ParseDecision converts a user-supplied value into a Decision.
func ParseDecision(value string) (Decision, bool) {
	d := Decision(strings.ToLower(strings.TrimSpace(value)))
	switch d {
	case DecisionPublished, DecisionDrafted, DecisionSkippedSafety,
		DecisionSkippedDuplicate, DecisionSkippedNoImage, DecisionFailed:
		return d, true
	}
	return "", false
}

// CandidateSnapshot is the candidate state frozen into a decision record.
type CandidateSnapshot struct {
	Title        string     `json:"title"`
	SourceKind   SourceKind `json:"source_kind"`
	QualityScore float64    `json:"quality_score"`
	TrustLabel   TrustLabel `json:"trust_label"`
	HasImage     bool       `json:"has_image"`
	Tags         []string   `json:"tags,omitempty"`
	Category     string     `json:"category,omitempty"`
	AttemptCount int        `json:"attempt_count"`
}

// DecisionRecord is an append-only audit entry.
type DecisionRecord struct {
	ID           string            `json:"id"`
	CycleID      string            `json:"cycle_id"`
	CandidateID  int64             `json:"candidate_id"`
	Decision     Decision          `json:"decision"`
	Reason       string            `json:"reason"`
	PublishedRef string            `json:"published_ref,omitempty"`
	Snapshot     CandidateSnapshot `json:"snapshot"`
	CreatedAt    time.Time         `json:"created_at"`
}

// HealthSummary aggregates queue state for status output.
type HealthSummary struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Published   int `json:"published"`
	Drafted     int `json:"drafted"`
	AutoFailed  int `json:"auto_failed"`
	Retrying    int `json:"retrying"`
	NeedsReview int `json:"needs_review"`
}

// DatabaseHealth captures diagnostic information about the database file.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalCandidates  int
	TotalDecisions   int
	Error            string
}
