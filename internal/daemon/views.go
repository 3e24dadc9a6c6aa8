package daemon

import (
	"time"

	"autopublish/internal/queue"
)

// CandidateView is the API shape of a candidate.
type CandidateView struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	SourceKind   string     `json:"source_kind"`
	SourceRef    string     `json:"source_ref"`
	Make         string     `json:"make,omitempty"`
	Model        string     `json:"model,omitempty"`
	Trim         string     `json:"trim,omitempty"`
	QualityScore float64    `json:"quality_score"`
	TrustLabel   string     `json:"trust_label"`
	HasImage     bool       `json:"has_image"`
	AttemptCount int        `json:"attempt_count"`
	LastAttempt  *time.Time `json:"last_attempt_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NeedsReview  bool       `json:"needs_review"`
	ReviewReason string     `json:"review_reason,omitempty"`
	PublishedRef string     `json:"published_ref,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewCandidateView converts c.
func NewCandidateView(c *queue.Candidate) CandidateView {
	return CandidateView{
		ID:           c.ID,
		Title:        c.Title,
		Status:       string(c.Status),
		SourceKind:   string(c.SourceKind),
		SourceRef:    c.SourceRef,
		Make:         c.Make,
		Model:        c.Model,
		Trim:         c.Trim,
		QualityScore: c.QualityScore,
		TrustLabel:   string(c.Trust.Label),
		HasImage:     c.HasImage(),
		AttemptCount: c.AttemptCount,
		LastAttempt:  c.LastAttemptAt,
		LastError:    c.LastError,
		NeedsReview:  c.NeedsReview,
		ReviewReason: c.ReviewReason,
		PublishedRef: c.PublishedRef,
		CreatedAt:    c.CreatedAt,
	}
}

// SettingsView is the API shape of the settings record.
type SettingsView struct {
	Version                 int64   `json:"version"`
	Enabled                 bool    `json:"enabled"`
	DraftMode               bool    `json:"draft_mode"`
	MinQuality              float64 `json:"min_quality"`
	HourlyCap               int     `json:"hourly_cap"`
	DailyCap                int     `json:"daily_cap"`
	PublishedToday          int     `json:"published_today"`
	CounterDay              string  `json:"counter_day"`
	RequireSafeSource       bool    `json:"require_safe_source"`
	RequireImage            bool    `json:"require_image"`
	AutoAttachImage         bool    `json:"auto_attach_image"`
	UnpublishOnImageFailure bool    `json:"unpublish_on_image_failure"`
	CooldownDays            int     `json:"cooldown_days"`
	MaxAttempts             int     `json:"max_attempts"`
	BackoffMinutes          []int   `json:"backoff_minutes"`
	FlagExactDuplicates     bool    `json:"flag_exact_duplicates"`
}

// NewSettingsView converts s.
func NewSettingsView(s queue.Settings) SettingsView {
	return SettingsView{
		Version:                 s.Version,
		Enabled:                 s.Enabled,
		DraftMode:               s.DraftMode,
		MinQuality:              s.MinQuality,
		HourlyCap:               s.HourlyCap,
		DailyCap:                s.DailyCap,
		PublishedToday:          s.PublishedToday,
		CounterDay:              s.CounterDay,
		RequireSafeSource:       s.RequireSafeSource,
		RequireImage:            s.RequireImage,
		AutoAttachImage:         s.AutoAttachImage,
		UnpublishOnImageFailure: s.UnpublishOnImageFailure,
		CooldownDays:            s.CooldownDays,
		MaxAttempts:             s.MaxAttempts,
		BackoffMinutes:          append([]int(nil), s.BackoffMinutes...),
		FlagExactDuplicates:     s.FlagExactDuplicates,
	}
}
