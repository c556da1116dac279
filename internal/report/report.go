// Package report assembles the per-file and project-wide results of a
// translation run into a serializable report, plus a pre-run size estimate.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"latex-project-translator/internal/parser"
	"latex-project-translator/internal/types"
)

// FileReport records how one file fared.
type FileReport struct {
	Path             string                  `json:"path"`
	Outcome          types.FileOutcome       `json:"outcome"`
	TranslatedRuns   int                     `json:"translated_runs"`
	UntranslatedRuns int                     `json:"untranslated_runs,omitempty"`
	RepairAttempts   int                     `json:"repair_attempts,omitempty"`
	Issues           []types.ValidationIssue `json:"issues,omitempty"`
}

// Summary aggregates outcomes across the project.
type Summary struct {
	TotalFiles           int `json:"total_files"`
	Clean                int `json:"clean"`
	Repaired             int `json:"repaired"`
	Failed               int `json:"failed"`
	Cancelled            int `json:"cancelled"`
	Blocked              int `json:"blocked"`
	TotalIssues          int `json:"total_issues"`
	UnresolvedReferences int `json:"unresolved_references"`
}

// ProjectReport is the full result of one run.
type ProjectReport struct {
	GeneratedAt    time.Time               `json:"generated_at"`
	TargetLanguage string                  `json:"target_language"`
	MainFile       string                  `json:"main_file,omitempty"`
	Files          []FileReport            `json:"files"`
	ProjectIssues  []types.ValidationIssue `json:"project_issues,omitempty"`
	Summary        Summary                 `json:"summary"`
}

// Finalize sorts files by path and recomputes the summary.
func (r *ProjectReport) Finalize() {
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })

	s := Summary{TotalFiles: len(r.Files), TotalIssues: len(r.ProjectIssues)}
	for _, f := range r.Files {
		s.TotalIssues += len(f.Issues)
		for _, issue := range f.Issues {
			if issue.Category == types.CategoryReference {
				s.UnresolvedReferences++
			}
		}
		switch f.Outcome {
		case types.OutcomeValidatedClean, types.OutcomeTranslated:
			s.Clean++
		case types.OutcomeRepaired:
			s.Repaired++
		case types.OutcomeUnrepairableFailed:
			s.Failed++
		case types.OutcomeCancelled:
			s.Cancelled++
		case types.OutcomeParsed:
			s.Blocked++
		}
	}
	r.Summary = s
}

// Save writes the report as indented JSON.
func (r *ProjectReport) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to encode report", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write report", err)
	}
	return nil
}

// Render returns a short human-readable run summary.
func (r *ProjectReport) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translation run (%s)\n", r.TargetLanguage)
	if r.MainFile != "" {
		fmt.Fprintf(&sb, "  main file: %s\n", r.MainFile)
	}
	fmt.Fprintf(&sb, "  files: %d  clean: %d  repaired: %d  failed: %d  cancelled: %d  blocked: %d\n",
		r.Summary.TotalFiles, r.Summary.Clean, r.Summary.Repaired,
		r.Summary.Failed, r.Summary.Cancelled, r.Summary.Blocked)
	fmt.Fprintf(&sb, "  issues: %d\n", r.Summary.TotalIssues)
	for _, f := range r.Files {
		if f.Outcome == types.OutcomeUnrepairableFailed || len(f.Issues) > 0 {
			fmt.Fprintf(&sb, "  %s: %s (%d issues)\n", f.Path, f.Outcome, len(f.Issues))
		}
	}
	return sb.String()
}

// Estimate sizes the translatable portion of a project before any API call
// is made.
type Estimate struct {
	Files             int `json:"files"`
	TranslatableRuns  int `json:"translatable_runs"`
	TranslatableBytes int `json:"translatable_bytes"`
}

// EstimateProject counts the translatable text runs across parsed files.
func EstimateProject(files map[string]*types.ProjectFile) *Estimate {
	est := &Estimate{Files: len(files)}
	for _, f := range files {
		for _, leaf := range parser.TranslatableLeaves(f.Elements) {
			est.TranslatableRuns++
			est.TranslatableBytes += len(leaf.Raw)
		}
	}
	return est
}
