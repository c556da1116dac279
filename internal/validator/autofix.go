package validator

import (
	"strings"

	"golang.org/x/text/width"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// AutoFix applies mechanical repairs for the fixable issues found by
// ValidateFile and reports whether anything changed. Two repairs exist:
// narrowing full-width structural characters, and restoring a brace balance
// that is off by exactly one. Character-set fixes run first because narrowing
// a full-width brace also changes the brace count.
func (v *Validator) AutoFix(file *types.ProjectFile, issues []types.ValidationIssue) bool {
	changed := false

	for _, issue := range issues {
		if issue.Category != types.CategoryCharacterSet {
			continue
		}
		leaf := leafAt(file.Elements, issue.ElementSpan)
		if leaf == nil {
			continue
		}
		if fixed := normalizeStructuralWidth(leaf.Raw); fixed != leaf.Raw {
			leaf.Raw = fixed
			changed = true
			logger.Debug("narrowed full-width structural characters",
				logger.String("file", file.Path),
				logger.Int("offset", leaf.Span.Start))
		}
	}

	for _, issue := range issues {
		if issue.Category != types.CategoryBalance {
			continue
		}
		leaf := leafAt(file.Elements, issue.ElementSpan)
		if leaf == nil {
			continue
		}
		expected := braceDeltaFromTrace(file.Trace, leaf.Span)
		opens, closes := countUnescaped(leaf.Raw, '{', '}')
		switch (opens - closes) - expected {
		case 1:
			// One close brace went missing; restore it at the run boundary.
			leaf.Raw += "}"
			changed = true
		case -1:
			leaf.Raw = "{" + leaf.Raw
			changed = true
		}
	}

	return changed
}

// normalizeStructuralWidth narrows the full-width forms of LaTeX structural
// characters while leaving all other text, including full-width prose
// punctuation, untouched.
func normalizeStructuralWidth(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if fullWidthStructural[r] {
			sb.WriteString(width.Narrow.String(string(r)))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// leafAt finds the translatable leaf whose span matches the issue span.
func leafAt(els []*types.StructuralElement, span *types.Span) *types.StructuralElement {
	if span == nil {
		return nil
	}
	for _, el := range els {
		if el.IsLeaf() {
			if el.Translatable && el.Span == *span {
				return el
			}
			continue
		}
		if found := leafAt(el.Children, span); found != nil {
			return found
		}
	}
	return nil
}
