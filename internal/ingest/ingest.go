package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autopublish/internal/queue"
)

// Record is one candidate as written by a generator.
type Record struct {
	Title        string         `yaml:"title"`
	SourceKind   string         `yaml:"source_kind"`
	SourceRef    string         `yaml:"source_ref"`
	Make         string         `yaml:"make"`
	Model        string         `yaml:"model"`
	Trim         string         `yaml:"trim"`
	QualityScore float64        `yaml:"quality_score"`
	Specs        map[string]any `yaml:"specs"`
	Tags         []string       `yaml:"tags"`
	Category     string         `yaml:"category"`
	ImageURL     string         `yaml:"image_url"`
	Trust        struct {
		Label       string `yaml:"label"`
		ImagePolicy string `yaml:"image_policy"`
	} `yaml:"trust"`
	CreatedAt time.Time `yaml:"created_at"`
}

type envelope struct {
	Candidates []Record `yaml:"candidates"`
}

// Parse decodes a batch.
func Parse(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("ingest: batch is empty")
	}
	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, fmt.Errorf("ingest: decode batch: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("ingest: batch is empty")
	}
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var records []Record
		if err := root.Decode(&records); err != nil {
			return nil, fmt.Errorf("ingest: decode records: %w", err)
		}
		return records, nil
	case yaml.MappingNode:
		var env envelope
		if err := root.Decode(&env); err != nil {
			return nil, fmt.Errorf("ingest: decode records: %w", err)
		}
		return env.Candidates, nil
	default:
		return nil, errors.New("ingest: batch must be a list or a mapping with a candidates key")
	}
}

// Candidate converts r into a queue candidate.
func (r Record) Candidate() (*queue.Candidate, error) {
	kind := queue.SourceKind(strings.ToLower(strings.TrimSpace(r.SourceKind)))
	switch kind {
	case "":
		kind = queue.SourceVideo
	case queue.SourceVideo, queue.SourcePressRelease:
	default:
		return nil, fmt.Errorf("unknown source_kind %q", r.SourceKind)
	}
	c := &queue.Candidate{
		Title:        r.Title,
		SourceKind:   kind,
		SourceRef:    r.SourceRef,
		Make:         r.Make,
		Model:        r.Model,
		Trim:         r.Trim,
		QualityScore: r.QualityScore,
		Tags:         r.Tags,
		Category:     r.Category,
		ImageURL:     r.ImageURL,
		Trust: queue.SourceTrust{
			Label:       queue.ParseTrustLabel(r.Trust.Label),
			ImagePolicy: r.Trust.ImagePolicy,
		},
		CreatedAt: r.CreatedAt,
	}
	if len(r.Specs) > 0 {
		specs, err := json.Marshal(r.Specs)
		if err != nil {
			return nil, fmt.Errorf("encode specs: %w", err)
		}
		c.SpecsJSON = string(specs)
	}
	return c, nil
}

// Store is the subset of the queue store an import needs.
type Store interface {
	NewCandidate(ctx context.Context, c *queue.Candidate) (*queue.Candidate, error)
	ListCandidates(ctx context.Context, filter queue.CandidateFilter) ([]*queue.Candidate, error)
}

// RecordError ties a failure to its position in the batch.
type RecordError struct {
	Index     int
	SourceRef string
	Err       error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.SourceRef, e.Err)
}

// Result reports what an import did.
type Result struct {
	Imported []*queue.Candidate
	Skipped  []string
	Errors   []RecordError
}

// Import inserts every record whose source reference is not yet queued.
// Bad records are reported and do not stop the batch.
func Import(ctx context.Context, store Store, records []Record) (Result, error) {
	var res Result
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ref := strings.TrimSpace(rec.SourceRef)
		if _, dup := seen[ref]; dup && ref != "" {
			res.Skipped = append(res.Skipped, ref)
			continue
		}
		seen[ref] = struct{}{}

		candidate, err := rec.Candidate()
		if err != nil {
			res.Errors = append(res.Errors, RecordError{Index: i, SourceRef: ref, Err: err})
			continue
		}
		if ref != "" {
			existing, err := store.ListCandidates(ctx, queue.CandidateFilter{SourceRef: ref, Limit: 1})
			if err != nil {
				return res, fmt.Errorf("check existing %s: %w", ref, err)
			}
			if len(existing) > 0 {
				res.Skipped = append(res.Skipped, ref)
				continue
			}
		}
		created, err := store.NewCandidate(ctx, candidate)
		if err != nil {
			res.Errors = append(res.Errors, RecordError{Index: i, SourceRef: ref, Err: err})
			continue
		}
		res.Imported = append(res.Imported, created)
	}
	return res, nil
}

// ImportFile reads path ("-" for stdin) and imports it.
func ImportFile(ctx context.Context, store Store, path string, stdin io.Reader) (Result, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Result{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	records, err := Parse(data)
	if err != nil {
		return Result{}, err
	}
	return Import(ctx, store, records)
}
