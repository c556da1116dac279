// Package orchestrator drives the translation of an analyzed project: it
// schedules files in dependency order, bounds concurrent API calls, validates
// and repairs each translated file, and assembles the run report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/parser"
	"latex-project-translator/internal/project"
	"latex-project-translator/internal/report"
	"latex-project-translator/internal/translator"
	"latex-project-translator/internal/types"
	"latex-project-translator/internal/validator"
)

// Config controls a translation run.
type Config struct {
	// TargetLanguage is the language translated text runs are written in.
	TargetLanguage string
	// MaxConcurrent bounds simultaneous translation API calls.
	MaxConcurrent int
	// MaxRepairRetries bounds the validate-repair loop per file.
	MaxRepairRetries int
	// Validation toggles the individual checks.
	Validation validator.Options
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		TargetLanguage:   "Japanese",
		MaxConcurrent:    4,
		MaxRepairRetries: 2,
		Validation:       validator.DefaultOptions(),
	}
}

// Orchestrator runs the translation pipeline over one analyzed project.
type Orchestrator struct {
	cfg      Config
	service  translator.Service
	analysis *project.Analysis
}

// New creates an orchestrator. The analysis must be complete and the service
// safe for concurrent use.
func New(cfg Config, service translator.Service, analysis *project.Analysis) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRepairRetries < 0 {
		cfg.MaxRepairRetries = 0
	}
	return &Orchestrator{cfg: cfg, service: service, analysis: analysis}
}

// Run translates every orderable file of the project and returns the report.
// Files blocked by an include cycle are skipped and keep their parsed state.
// Cancellation is honored at state transition boundaries; files already past
// translation finish their validation.
func (o *Orchestrator) Run(ctx context.Context) *report.ProjectReport {
	start := time.Now()
	tasks := make(map[string]*fileTask, len(o.analysis.Files))
	for path := range o.analysis.Files {
		tasks[path] = newFileTask(path)
	}

	for _, path := range o.analysis.Blocked {
		task := tasks[path]
		o.analysis.Files[path].Outcome = types.OutcomeParsed
		task.finish(types.OutcomeParsed)
	}

	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, path := range o.analysis.Order {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			task := tasks[p]
			file := o.analysis.Files[p]
			outcome := o.processFile(ctx, file, task, tasks, sem)
			file.Outcome = outcome
			task.finish(outcome)
		}(path)
	}
	wg.Wait()

	rep := o.buildReport(tasks)
	logger.Info("translation run finished",
		logger.Int("files", rep.Summary.TotalFiles),
		logger.Int("failed", rep.Summary.Failed),
		logger.Int("cancelled", rep.Summary.Cancelled),
		logger.Float64("seconds", time.Since(start).Seconds()))
	return rep
}

// processFile walks one file through the state machine and returns its
// terminal outcome.
func (o *Orchestrator) processFile(ctx context.Context, file *types.ProjectFile, task *fileTask, tasks map[string]*fileTask, sem chan struct{}) types.FileOutcome {
	task.to(StateParsed)

	// A file starts translating only once every file that includes it has
	// reached a terminal state.
	depFailed := false
	for _, includer := range o.analysis.Graph.Includers(task.path) {
		dep := tasks[includer]
		select {
		case <-ctx.Done():
			return types.OutcomeCancelled
		case <-dep.done:
		}
		switch dep.result() {
		case types.OutcomeUnrepairableFailed, types.OutcomeCancelled:
			depFailed = true
		}
	}
	if ctx.Err() != nil {
		return types.OutcomeCancelled
	}

	task.to(StateTranslating)
	tctx := o.translationContext(file)
	leaves := parser.TranslatableLeaves(file.Elements)
	for _, leaf := range leaves {
		select {
		case <-ctx.Done():
			restoreOriginals(file)
			return types.OutcomeCancelled
		case sem <- struct{}{}:
		}
		out, err := o.service.Translate(ctx, leaf.Raw, tctx)
		<-sem

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				restoreOriginals(file)
				return types.OutcomeCancelled
			}
			// The element keeps its original text and the file continues in
			// degraded form.
			task.untranslatedRuns++
			file.Issues = append(file.Issues, types.ValidationIssue{
				Severity:    types.SeverityWarning,
				Category:    types.CategoryTranslation,
				File:        file.Path,
				ElementSpan: spanCopy(leaf.Span),
				Description: fmt.Sprintf("text run left untranslated: %v", err),
			})
			logger.Warn("text run left untranslated",
				logger.String("file", file.Path),
				logger.Int("offset", leaf.Span.Start),
				logger.Err(err))
			continue
		}
		leaf.Raw = out
		task.translatedRuns++
	}

	if ctx.Err() != nil {
		restoreOriginals(file)
		return types.OutcomeCancelled
	}

	task.to(StateValidating)
	opts := o.cfg.Validation
	if depFailed {
		opts.Lenient = true
	}
	v := validator.New(o.analysis, opts)

	issues := v.ValidateFile(file)
	attempts := 0
	for hasErrors(issues) && attempts < o.cfg.MaxRepairRetries {
		task.to(StateRepairing)
		attempts++
		if !v.AutoFix(file, issues) {
			break
		}
		task.to(StateValidating)
		issues = v.ValidateFile(file)
	}
	task.repairAttempts = attempts
	file.Issues = append(file.Issues, issues...)

	if hasErrors(issues) {
		// The original text is the safer artifact when repair gives up.
		restoreOriginals(file)
		task.to(StateFailed)
		return types.OutcomeUnrepairableFailed
	}

	task.to(StateDone)
	switch {
	case attempts > 0:
		return types.OutcomeRepaired
	case !anyCheckEnabled(opts):
		return types.OutcomeTranslated
	default:
		return types.OutcomeValidatedClean
	}
}

func anyCheckEnabled(opts validator.Options) bool {
	return opts.Balance || opts.Environments || opts.References ||
		opts.Definitions || opts.CharacterSet
}

// translationContext lists the project symbols visible to the file, so the
// prompt can pin them.
func (o *Orchestrator) translationContext(file *types.ProjectFile) *types.TranslationContext {
	reg := o.analysis.Registry
	graph := o.analysis.Graph

	visible := func(definer string) bool {
		return definer == file.Path || graph.IsAncestor(definer, file.Path)
	}

	var cmds, envs []string
	for name, definer := range reg.Commands {
		if visible(definer) {
			cmds = append(cmds, name)
		}
	}
	for name, definer := range reg.Environments {
		if visible(definer) {
			envs = append(envs, name)
		}
	}
	sort.Strings(cmds)
	sort.Strings(envs)

	return &types.TranslationContext{
		File:           file.Path,
		TargetLanguage: o.cfg.TargetLanguage,
		CommandNames:   cmds,
		EnvNames:       envs,
	}
}

// buildReport assembles the per-file outcomes into the project report.
func (o *Orchestrator) buildReport(tasks map[string]*fileTask) *report.ProjectReport {
	rep := &report.ProjectReport{
		GeneratedAt:    time.Now(),
		TargetLanguage: o.cfg.TargetLanguage,
		MainFile:       o.analysis.MainFile,
		ProjectIssues:  o.analysis.Issues,
	}
	for path, task := range tasks {
		file := o.analysis.Files[path]
		rep.Files = append(rep.Files, report.FileReport{
			Path:             path,
			Outcome:          task.result(),
			TranslatedRuns:   task.translatedRuns,
			UntranslatedRuns: task.untranslatedRuns,
			RepairAttempts:   task.repairAttempts,
			Issues:           file.Issues,
		})
	}
	rep.Finalize()
	return rep
}

// restoreOriginals puts every translatable leaf back to its original bytes.
func restoreOriginals(file *types.ProjectFile) {
	var walk func(els []*types.StructuralElement)
	walk = func(els []*types.StructuralElement) {
		for _, el := range els {
			if !el.IsLeaf() {
				walk(el.Children)
				continue
			}
			if el.Translatable && el.Span.End <= len(file.Content) {
				el.Raw = file.Content[el.Span.Start:el.Span.End]
			}
		}
	}
	walk(file.Elements)
}

func hasErrors(issues []types.ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == types.SeverityError {
			return true
		}
	}
	return false
}

func spanCopy(s types.Span) *types.Span {
	c := s
	return &c
}
