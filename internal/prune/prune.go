// Package prune applies the importance-based retention policy to daily
// memory logs: <workspace>/memory/YYYY-MM-DD.md files holding lines like
//
//	- [decision|i=0.85] Chose SQLite for local-first storage
//
// Untagged lines are never touched.
package prune

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	StructuralImportance = 0.8
	PotentialImportance  = 0.4

	ContextualDays = 7  // contextual entries live this many days
	PotentialDays  = 30 // potential entries live this many days

	DefaultPreviewLimit = 10
	previewContentMax   = 100
)

var (
	// Tags may be any letters or digits; importance digits stay ASCII.
	observationRE = regexp.MustCompile(`^- \[([\p{L}\p{N}_]+)\|i=(\d+\.\d+)\]\s+(.+)$`)
	fileDateRE    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.md$`)
)

// Tier is a retention class derived from an entry's importance.
type Tier int

const (
	Contextual Tier = iota
	Potential
	Structural
)

func (t Tier) String() string {
	switch t {
	case Structural:
		return "structural"
	case Potential:
		return "potential"
	default:
		return "contextual"
	}
}

// TierOf classifies an importance value.
func TierOf(importance float64) Tier {
	switch {
	case importance >= StructuralImportance:
		return Structural
	case importance >= PotentialImportance:
		return Potential
	default:
		return Contextual
	}
}

// ShouldPrune reports whether an entry of the given importance, in a file
// ageDays old, has outlived its tier.
func ShouldPrune(importance float64, ageDays int) bool {
	switch TierOf(importance) {
	case Structural:
		return false
	case Potential:
		return ageDays > PotentialDays
	default:
		return ageDays > ContextualDays
	}
}

// Observation is one tagged log line.
type Observation struct {
	Type       string
	Importance float64
	Content    string
}

// ParseObservation parses a tagged line. Surrounding whitespace is ignored.
func ParseObservation(line string) (Observation, bool) {
	m := observationRE.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Observation{}, false
	}
	importance, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Observation{}, false
	}
	return Observation{Type: m[1], Importance: importance, Content: m[3]}, true
}

// ParseFileDate extracts the date from a YYYY-MM-DD.md file name.
func ParseFileDate(name string) (time.Time, bool) {
	m := fileDateRE.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// AgeDays is the number of whole calendar days from fileDate to the UTC
// date of now.
func AgeDays(fileDate, now time.Time) int {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(today.Sub(fileDate).Hours() / 24)
}

// Candidate is a structural entry worth promoting to long-term memory.
type Candidate struct {
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
	Content    string  `json:"content"`
	Date       string  `json:"date"`
}

// FileResult is the outcome for one file that had entries pruned.
type FileResult struct {
	Name    string `json:"name"`
	AgeDays int    `json:"age_days"`
	Pruned  int    `json:"pruned"`
}

// Report summarizes a pruning pass.
type Report struct {
	DryRun        bool         `json:"dry_run"`
	Files         []FileResult `json:"files"`
	Promoted      []Candidate  `json:"promoted"`
	TotalPruned   int          `json:"total_pruned"`
	FilesModified int          `json:"files_modified"`

	previewLimit int
}

// Preview returns the first promotion candidates for human review, with
// long content shortened.
func (r *Report) Preview() []Candidate {
	limit := r.previewLimit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	n := min(limit, len(r.Promoted))
	out := make([]Candidate, n)
	for i := range n {
		c := r.Promoted[i]
		if runes := []rune(c.Content); len(runes) > previewContentMax {
			c.Content = string(runes[:previewContentMax])
		}
		out[i] = c
	}
	return out
}

// Pruner walks one memory directory.
type Pruner struct {
	Dir          string
	Now          func() time.Time
	Logger       *zap.Logger
	PreviewLimit int
}

// New returns a Pruner for <workspace>/memory. Both directories must exist.
func New(workspace string, logger *zap.Logger) (*Pruner, error) {
	if _, err := os.Stat(workspace); err != nil {
		return nil, fmt.Errorf("workspace directory does not exist: %s", workspace)
	}
	dir := filepath.Join(workspace, "memory")
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("memory directory not found: %s (expected <workspace>/memory)", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{Dir: dir, Now: time.Now, Logger: logger, PreviewLimit: DefaultPreviewLimit}, nil
}

// Run makes one pass over the directory in file-name order. With dryRun
// nothing is written; the report is the same either way.
func (p *Pruner) Run(dryRun bool) (*Report, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("read memory dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	report := &Report{DryRun: dryRun, previewLimit: p.PreviewLimit}
	today := now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := ParseFileDate(e.Name())
		if !ok {
			continue
		}
		age := AgeDays(date, today)
		if age < ContextualDays {
			continue
		}

		path := filepath.Join(p.Dir, e.Name())
		pruned, promoted, err := pruneFile(path, date, age, dryRun)
		if err != nil {
			return nil, err
		}
		if pruned > 0 {
			report.Files = append(report.Files, FileResult{Name: e.Name(), AgeDays: age, Pruned: pruned})
			report.FilesModified++
			report.TotalPruned += pruned
			log.Info("pruned observations",
				zap.String("file", e.Name()),
				zap.Int("count", pruned),
				zap.Int("age_days", age),
				zap.Bool("dry_run", dryRun))
		}
		report.Promoted = append(report.Promoted, promoted...)
	}
	return report, nil
}

func pruneFile(path string, date time.Time, age int, dryRun bool) (int, []Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var (
		kept     strings.Builder
		pruned   int
		promoted []Candidate
	)
	for _, line := range strings.SplitAfter(string(data), "\n") {
		obs, ok := ParseObservation(line)
		if !ok {
			kept.WriteString(line)
			continue
		}
		if ShouldPrune(obs.Importance, age) {
			pruned++
			continue
		}
		kept.WriteString(line)
		if TierOf(obs.Importance) == Structural {
			promoted = append(promoted, Candidate{
				Type:       obs.Type,
				Importance: obs.Importance,
				Content:    obs.Content,
				Date:       date.Format(time.DateOnly),
			})
		}
	}

	if !dryRun && pruned > 0 {
		if err := writeFileAtomic(path, []byte(kept.String())); err != nil {
			return 0, nil, err
		}
	}
	return pruned, promoted, nil
}

// writeFileAtomic replaces path through a sibling temp file so a crash
// leaves either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(tmpPath), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
