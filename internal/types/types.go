// Package types defines the core data model shared by the LaTeX project
// translator: structural elements, project files, validation issues, and the
// application error taxonomy.
package types

// ElementKind classifies a structural element of a parsed LaTeX file.
type ElementKind string

const (
	KindPlainText   ElementKind = "plain_text"
	KindInlineMath  ElementKind = "inline_math"
	KindDisplayMath ElementKind = "display_math"
	KindEnvironment ElementKind = "environment"
	KindCommand     ElementKind = "command"
	KindCitation    ElementKind = "citation"
	KindReference   ElementKind = "reference"
	KindComment     ElementKind = "comment"
)

// Span is a half-open [Start, End) byte range into the owning file's original
// text. Spans refer to the original text and stay valid after translation
// mutates element Raw fields.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// StructuralElement is the atomic unit of structural analysis. For a single
// file the ordered top-level sequence is contiguous and non-overlapping, and
// concatenating Raw in order reproduces the original text exactly. The same
// invariant holds for Children over [BodyStart, BodyEnd).
type StructuralElement struct {
	Kind         ElementKind          `json:"kind"`
	Span         Span                 `json:"span"`
	Raw          string               `json:"raw"`
	Translatable bool                 `json:"translatable"`
	Children     []*StructuralElement `json:"children,omitempty"`

	// BodyStart/BodyEnd delimit the region covered by Children, in original
	// file offsets. Zero for leaf elements.
	BodyStart int `json:"body_start,omitempty"`
	BodyEnd   int `json:"body_end,omitempty"`

	// Kind-specific metadata.
	EnvName  string `json:"env_name,omitempty"`  // Environment
	EnvDepth int    `json:"env_depth,omitempty"` // Environment nesting depth, outermost = 0
	Macro    string `json:"macro,omitempty"`     // Command: macro name without backslash
	ArgCount int    `json:"arg_count,omitempty"` // Command: number of brace arguments
	Key      string `json:"key,omitempty"`       // Citation/Reference: raw key list
}

// IsLeaf reports whether the element has no parsed children.
func (e *StructuralElement) IsLeaf() bool { return len(e.Children) == 0 }

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueCategory identifies the validator check that produced an issue.
type IssueCategory string

const (
	CategoryBalance      IssueCategory = "balance"       // brace/bracket/math delimiter balance
	CategoryEnvironment  IssueCategory = "environment"   // begin/end matching and nesting
	CategoryReference    IssueCategory = "reference"     // unresolved \ref/\cite keys
	CategoryDefinition   IssueCategory = "definition"    // custom macro used without visible definition
	CategoryCharacterSet IssueCategory = "character_set" // full-width structural characters
	CategorySyntax       IssueCategory = "syntax"        // parser-reported irregularities
	CategoryDependency   IssueCategory = "dependency"    // include edges, cycles, external files
	CategoryTranslation  IssueCategory = "translation"   // service failures degrading an element
)

// ValidationIssue describes one integrity violation found in a file or in the
// project as a whole (File empty for project-level issues).
type ValidationIssue struct {
	Severity    Severity      `json:"severity"`
	Category    IssueCategory `json:"category"`
	File        string        `json:"file,omitempty"`
	ElementSpan *Span         `json:"element_span,omitempty"`
	Description string        `json:"description"`
}

// FileOutcome is the terminal state of a processed file.
type FileOutcome string

const (
	OutcomeParsed             FileOutcome = "parsed"
	OutcomeTranslated         FileOutcome = "translated"
	OutcomeValidatedClean     FileOutcome = "validated_clean"
	OutcomeRepaired           FileOutcome = "repaired"
	OutcomeUnrepairableFailed FileOutcome = "unrepairable_failed"
	OutcomeCancelled          FileOutcome = "cancelled"
)

// ProjectFile is one LaTeX source file of the project. It is created when the
// raw text is read, populated by the parser, enriched by the analyzer, mutated
// in place by the orchestrator and validator, and frozen once Outcome is set.
type ProjectFile struct {
	Path     string               `json:"path"`
	Content  string               `json:"-"`
	Elements []*StructuralElement `json:"-"`
	Trace    []BalanceEvent       `json:"-"`

	Includes            []string `json:"includes,omitempty"`
	DefinedCommands     []string `json:"defined_commands,omitempty"`
	DefinedEnvironments []string `json:"defined_environments,omitempty"`
	UsedReferences      []string `json:"used_references,omitempty"`
	UsedCitations       []string `json:"used_citations,omitempty"`

	Outcome FileOutcome       `json:"outcome,omitempty"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// TranslationContext carries the symbols visible to a file when its elements
// are submitted for translation, so the service can avoid rewriting tokens
// that look like macro names embedded in prose.
type TranslationContext struct {
	File           string   `json:"file"`
	TargetLanguage string   `json:"target_language"`
	CommandNames   []string `json:"command_names,omitempty"`
	EnvNames       []string `json:"env_names,omitempty"`
}

// ErrorCode classifies application errors.
type ErrorCode string

const (
	ErrMalformedSyntax     ErrorCode = "MALFORMED_SYNTAX"
	ErrStructural          ErrorCode = "STRUCTURAL_ISSUE"
	ErrCycle               ErrorCode = "DEPENDENCY_CYCLE"
	ErrNetwork             ErrorCode = "NETWORK_ERROR"
	ErrAPICall             ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit        ErrorCode = "API_RATE_LIMIT"
	ErrTranslationRejected ErrorCode = "TRANSLATION_REJECTED"
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"
	ErrConfig              ErrorCode = "CONFIG_ERROR"
	ErrInternal            ErrorCode = "INTERNAL_ERROR"
)

// AppError is the application error type. Cause is excluded from JSON.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and
// optional cause.
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// NewAppErrorWithDetails creates a new AppError with details.
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Details: details, Cause: cause}
}

// IsTransient reports whether err is a service failure worth retrying with
// backoff. Anything that is not an AppError is treated as permanent.
func IsTransient(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		switch appErr.Code {
		case ErrNetwork, ErrAPIRateLimit:
			return true
		}
	}
	return false
}
