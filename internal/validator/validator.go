// Package validator checks the structural integrity of a file after
// translation has mutated its translatable leaves, and applies a bounded set
// of automatic repairs for the violations that have a mechanical fix.
package validator

import (
	"fmt"
	"strings"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/parser"
	"latex-project-translator/internal/project"
	"latex-project-translator/internal/types"
)

// Options toggles the individual validation checks. Lenient mode is used when
// a file's dependencies failed to translate: the cross-file checks are
// unreliable then, so they are skipped and the file gets a warning instead.
type Options struct {
	Balance      bool
	Environments bool
	References   bool
	Definitions  bool
	CharacterSet bool
	Lenient      bool
}

// DefaultOptions enables every check in strict mode.
func DefaultOptions() Options {
	return Options{
		Balance:      true,
		Environments: true,
		References:   true,
		Definitions:  true,
		CharacterSet: true,
	}
}

// Validator validates files against the project-wide analysis.
type Validator struct {
	opts     Options
	analysis *project.Analysis
}

// New creates a validator bound to a completed project analysis.
func New(analysis *project.Analysis, opts Options) *Validator {
	return &Validator{opts: opts, analysis: analysis}
}

// ValidateFile runs the enabled checks over one file and returns the issues
// found. The file's Elements are read in their current, possibly translated,
// state; original text is recovered from Content via element spans.
func (v *Validator) ValidateFile(file *types.ProjectFile) []types.ValidationIssue {
	var issues []types.ValidationIssue

	if v.opts.Balance {
		issues = append(issues, v.checkBalance(file)...)
	}
	if v.opts.Environments {
		issues = append(issues, v.checkEnvironments(file)...)
	}
	if v.opts.CharacterSet {
		issues = append(issues, v.checkCharacterSet(file)...)
	}
	if v.opts.Lenient {
		issues = append(issues, types.ValidationIssue{
			Severity:    types.SeverityWarning,
			Category:    types.CategoryDependency,
			File:        file.Path,
			Description: "cross-file checks skipped: a dependency of this file did not translate cleanly",
		})
	} else {
		if v.opts.References {
			issues = append(issues, v.checkReferences(file)...)
		}
		if v.opts.Definitions {
			issues = append(issues, v.checkDefinitions(file)...)
		}
	}

	if len(issues) > 0 {
		logger.Debug("validation found issues",
			logger.String("file", file.Path),
			logger.Int("count", len(issues)))
	}
	return issues
}

// ============================================================================
// Check 1: delimiter balance
// ============================================================================

// checkBalance verifies that translation preserved the delimiter structure of
// every translatable leaf. The expected brace delta of a leaf is re-derived
// from the parser's balance trace rather than by re-scanning original text,
// so the scanning rules live in one place. Dollar signs are compared against
// the original leaf bytes directly since math never lands inside a text leaf.
func (v *Validator) checkBalance(file *types.ProjectFile) []types.ValidationIssue {
	var issues []types.ValidationIssue

	for _, leaf := range translatedLeaves(file.Elements) {
		expected := braceDeltaFromTrace(file.Trace, leaf.Span)
		actualOpen, actualClose := countUnescaped(leaf.Raw, '{', '}')
		actual := actualOpen - actualClose
		if actual != expected {
			issues = append(issues, types.ValidationIssue{
				Severity:    types.SeverityError,
				Category:    types.CategoryBalance,
				File:        file.Path,
				ElementSpan: spanCopy(leaf.Span),
				Description: fmt.Sprintf("brace balance changed by translation: expected net %+d, found %+d", expected, actual),
			})
		}

		origDollars := countDollars(original(file, leaf))
		newDollars := countDollars(leaf.Raw)
		if origDollars != newDollars {
			issues = append(issues, types.ValidationIssue{
				Severity:    types.SeverityError,
				Category:    types.CategoryBalance,
				File:        file.Path,
				ElementSpan: spanCopy(leaf.Span),
				Description: fmt.Sprintf("unescaped $ count changed by translation: %d became %d", origDollars, newDollars),
			})
		}
	}
	return issues
}

// braceDeltaFromTrace computes the net brace delta the parser observed inside
// span. Prose argument regions are scanned twice by the parser, so events are
// deduplicated by position before counting.
func braceDeltaFromTrace(trace []types.BalanceEvent, span types.Span) int {
	seen := make(map[int]bool)
	delta := 0
	for _, ev := range parser.TraceWithin(trace, span) {
		if seen[ev.Pos] {
			continue
		}
		switch ev.Kind {
		case types.EventBraceOpen:
			seen[ev.Pos] = true
			delta++
		case types.EventBraceClose:
			seen[ev.Pos] = true
			delta--
		}
	}
	return delta
}

// ============================================================================
// Check 2: environment integrity
// ============================================================================

// checkEnvironments verifies that translation introduced or removed no
// \begin/\end tokens, and replays the parser's environment events to confirm
// they nest properly.
func (v *Validator) checkEnvironments(file *types.ProjectFile) []types.ValidationIssue {
	var issues []types.ValidationIssue

	for _, leaf := range translatedLeaves(file.Elements) {
		origBegins, origEnds := countEnvTokens(original(file, leaf))
		newBegins, newEnds := countEnvTokens(leaf.Raw)
		if origBegins != newBegins || origEnds != newEnds {
			issues = append(issues, types.ValidationIssue{
				Severity:    types.SeverityError,
				Category:    types.CategoryEnvironment,
				File:        file.Path,
				ElementSpan: spanCopy(leaf.Span),
				Description: "translation changed the number of \\begin or \\end tokens in a text run",
			})
		}
	}

	var stack []string
	for _, ev := range file.Trace {
		switch ev.Kind {
		case types.EventEnvBegin:
			stack = append(stack, ev.Name)
		case types.EventEnvEnd:
			if len(stack) == 0 || stack[len(stack)-1] != ev.Name {
				issues = append(issues, types.ValidationIssue{
					Severity:    types.SeverityError,
					Category:    types.CategoryEnvironment,
					File:        file.Path,
					ElementSpan: &types.Span{Start: ev.Pos, End: ev.Pos},
					Description: fmt.Sprintf("environment %q closes out of order", ev.Name),
				})
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	for _, name := range stack {
		issues = append(issues, types.ValidationIssue{
			Severity:    types.SeverityError,
			Category:    types.CategoryEnvironment,
			File:        file.Path,
			Description: fmt.Sprintf("environment %q is never closed", name),
		})
	}
	return issues
}

// ============================================================================
// Check 3: reference integrity
// ============================================================================

// checkReferences verifies that every \ref key resolves to a project label.
// Citation keys are checked against \bibitem entries only when the project
// defines any; otherwise the bibliography lives in an external .bib file and
// the keys cannot be verified here.
func (v *Validator) checkReferences(file *types.ProjectFile) []types.ValidationIssue {
	var issues []types.ValidationIssue
	reg := v.analysis.Registry

	for _, key := range file.UsedReferences {
		if _, ok := reg.Labels[key]; !ok {
			issues = append(issues, types.ValidationIssue{
				Severity:    types.SeverityError,
				Category:    types.CategoryReference,
				File:        file.Path,
				Description: fmt.Sprintf("reference key %q has no matching \\label in the project", key),
			})
		}
	}

	if len(reg.Bibitems) > 0 {
		for _, key := range file.UsedCitations {
			if _, ok := reg.Bibitems[key]; !ok {
				issues = append(issues, types.ValidationIssue{
					Severity:    types.SeverityWarning,
					Category:    types.CategoryReference,
					File:        file.Path,
					Description: fmt.Sprintf("citation key %q has no matching \\bibitem in the project", key),
				})
			}
		}
	}
	return issues
}

// ============================================================================
// Check 4: definition visibility
// ============================================================================

// checkDefinitions verifies that every project-defined macro or environment
// used by the file is defined in the file itself or in a file that
// transitively includes it. Symbols absent from the registry are assumed to
// come from packages and are not checked.
func (v *Validator) checkDefinitions(file *types.ProjectFile) []types.ValidationIssue {
	var issues []types.ValidationIssue
	reg := v.analysis.Registry
	graph := v.analysis.Graph

	visible := func(definer string) bool {
		return definer == file.Path || graph.IsAncestor(definer, file.Path)
	}

	reported := make(map[string]bool)
	var walk func(els []*types.StructuralElement)
	walk = func(els []*types.StructuralElement) {
		for _, el := range els {
			switch el.Kind {
			case types.KindCommand:
				if definer, ok := reg.Commands[el.Macro]; ok && !visible(definer) && !reported["\\"+el.Macro] {
					reported["\\"+el.Macro] = true
					issues = append(issues, types.ValidationIssue{
						Severity:    types.SeverityError,
						Category:    types.CategoryDefinition,
						File:        file.Path,
						ElementSpan: spanCopy(el.Span),
						Description: fmt.Sprintf("macro \\%s is defined in %s, which does not include this file", el.Macro, definer),
					})
				}
			case types.KindEnvironment:
				if definer, ok := reg.Environments[el.EnvName]; ok && !visible(definer) && !reported[el.EnvName] {
					reported[el.EnvName] = true
					issues = append(issues, types.ValidationIssue{
						Severity:    types.SeverityError,
						Category:    types.CategoryDefinition,
						File:        file.Path,
						ElementSpan: spanCopy(el.Span),
						Description: fmt.Sprintf("environment %q is defined in %s, which does not include this file", el.EnvName, definer),
					})
				}
			}
			if !el.IsLeaf() {
				walk(el.Children)
			}
		}
	}
	walk(file.Elements)
	return issues
}

// ============================================================================
// Check 5: character set
// ============================================================================

// fullWidthStructural maps the full-width forms of LaTeX structural
// characters that translation services sometimes substitute.
var fullWidthStructural = map[rune]bool{
	'｛': true, '｝': true, '＄': true, '＼': true, '［': true, '］': true, '％': true,
}

// checkCharacterSet flags full-width structural characters inside translated
// text runs. These break compilation and have a mechanical fix.
func (v *Validator) checkCharacterSet(file *types.ProjectFile) []types.ValidationIssue {
	var issues []types.ValidationIssue
	for _, leaf := range translatedLeaves(file.Elements) {
		for _, r := range leaf.Raw {
			if fullWidthStructural[r] {
				issues = append(issues, types.ValidationIssue{
					Severity:    types.SeverityError,
					Category:    types.CategoryCharacterSet,
					File:        file.Path,
					ElementSpan: spanCopy(leaf.Span),
					Description: fmt.Sprintf("full-width structural character %q in translated text", r),
				})
				break
			}
		}
	}
	return issues
}

// ============================================================================
// Helpers
// ============================================================================

// translatedLeaves returns the translatable leaves of the tree; these are the
// only elements whose Raw can have been mutated.
func translatedLeaves(els []*types.StructuralElement) []*types.StructuralElement {
	var out []*types.StructuralElement
	var walk func(els []*types.StructuralElement)
	walk = func(els []*types.StructuralElement) {
		for _, el := range els {
			if !el.IsLeaf() {
				walk(el.Children)
				continue
			}
			if el.Translatable {
				out = append(out, el)
			}
		}
	}
	walk(els)
	return out
}

// original returns the untouched bytes the leaf covered before translation.
func original(file *types.ProjectFile, leaf *types.StructuralElement) string {
	if leaf.Span.End <= len(file.Content) && leaf.Span.Start <= leaf.Span.End {
		return file.Content[leaf.Span.Start:leaf.Span.End]
	}
	return ""
}

// countUnescaped counts unescaped occurrences of open and close in s.
func countUnescaped(s string, open, close byte) (opens, closes int) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case open:
			opens++
		case close:
			closes++
		}
	}
	return opens, closes
}

func countDollars(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '$':
			n++
		}
	}
	return n
}

func countEnvTokens(s string) (begins, ends int) {
	begins = strings.Count(s, `\begin{`)
	ends = strings.Count(s, `\end{`)
	return begins, ends
}

func spanCopy(s types.Span) *types.Span {
	c := s
	return &c
}
