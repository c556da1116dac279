// Package parser turns the raw text of one LaTeX file into an ordered,
// gapless sequence of typed structural elements.
//
// The scan is a single left-to-right pass driven by an explicit stack of open
// environments; nesting depth is bounded by the stack slice, not by call-stack
// recursion. Concatenating the Raw fields of the resulting top-level sequence
// reproduces the input byte-for-byte.
package parser

import (
	"fmt"
	"strings"

	"latex-project-translator/internal/types"
)

// Result is the outcome of parsing one file. Issues carries recoverable
// irregularities; the parser favors completeness over rejection and only
// fails outright on unrecoverable input (see Parse).
type Result struct {
	Elements []*types.StructuralElement
	Trace    []types.BalanceEvent
	Issues   []types.ValidationIssue
}

// citationMacros are the macros whose brace argument is a citation key list.
var citationMacros = map[string]bool{
	"cite": true, "citep": true, "citet": true, "citealt": true,
	"citealp": true, "citeauthor": true, "citeyear": true,
	"parencite": true, "textcite": true, "autocite": true, "footcite": true,
}

// referenceMacros are the macros whose brace argument is a label key.
var referenceMacros = map[string]bool{
	"ref": true, "eqref": true, "pageref": true, "autoref": true,
	"nameref": true, "cref": true, "Cref": true, "vref": true,
}

// proseMacros are the commands whose final brace argument is natural-language
// prose and is parsed into child elements for translation.
var proseMacros = map[string]bool{
	"part": true, "chapter": true, "section": true, "subsection": true,
	"subsubsection": true, "paragraph": true, "subparagraph": true,
	"caption": true, "footnote": true, "title": true, "author": true,
	"textbf": true, "textit": true, "emph": true, "underline": true,
}

// verbatimEnvs swallow their body as raw text; an unterminated one is the one
// unrecoverable parse failure.
var verbatimEnvs = map[string]bool{
	"verbatim": true, "verbatim*": true, "Verbatim": true,
	"lstlisting": true, "minted": true, "comment": true,
}

// opaqueEnvs have bodies that must never be translated (math, code-like
// drawing environments); their content is kept as raw text without children.
var opaqueEnvs = map[string]bool{
	"equation": true, "equation*": true, "align": true, "align*": true,
	"gather": true, "gather*": true, "multline": true, "multline*": true,
	"flalign": true, "alignat": true, "eqnarray": true, "displaymath": true,
	"algorithm": true, "algorithmic": true, "tikzpicture": true, "pgfpicture": true,
}

// maxProseDepth bounds recursive parsing of prose-bearing command arguments.
// Deeper nesting is kept opaque rather than risking unbounded recursion.
const maxProseDepth = 8

// Parse scans fileText into a structural element sequence. It returns a
// MalformedSyntaxError AppError only when recovery is impossible: an
// unterminated verbatim-like environment or an unterminated brace argument at
// end of file. Every other irregularity yields a best-effort element plus a
// ValidationIssue in the result.
func Parse(fileText string) (*Result, error) {
	s := &scanner{src: fileText, limit: len(fileText)}
	elements, err := s.scanRegion(0, len(fileText), 0, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Elements: elements, Trace: s.trace, Issues: s.issues}, nil
}

// scanner holds the shared state of one parse: the source text, the balance
// trace, and the accumulated issues. Region scans (environment bodies, prose
// arguments) share the same scanner so trace and issues stay file-global.
type scanner struct {
	src    string
	limit  int
	trace  []types.BalanceEvent
	issues []types.ValidationIssue
}

// envFrame is one open environment on the explicit scan stack.
type envFrame struct {
	name       string
	beginStart int // offset of the backslash of \begin
	bodyStart  int // offset just past the begin token and its arguments
	depth      int
	children   []*types.StructuralElement
}

func (s *scanner) issue(severity types.Severity, category types.IssueCategory, start, end int, desc string) {
	s.issues = append(s.issues, types.ValidationIssue{
		Severity:    severity,
		Category:    category,
		ElementSpan: &types.Span{Start: start, End: end},
		Description: desc,
	})
}

func (s *scanner) event(kind types.EventKind, pos int, name string) {
	s.trace = append(s.trace, types.BalanceEvent{Kind: kind, Pos: pos, Name: name})
}

// scanRegion scans src[start:end) into an element sequence. proseDepth tracks
// how deep we are inside prose-bearing command arguments. outerEnvs is the
// stack of environment names already open around this region, used only for
// depth metadata.
func (s *scanner) scanRegion(start, end, proseDepth int, outerEnvs []string) ([]*types.StructuralElement, error) {
	root := &envFrame{depth: len(outerEnvs) - 1, bodyStart: start}
	stack := []*envFrame{root}
	top := func() *envFrame { return stack[len(stack)-1] }

	pos := start
	textStart := start

	// flushText emits the pending plain-text run [textStart, upto).
	flushText := func(upto int) {
		if upto > textStart {
			top().children = append(top().children, &types.StructuralElement{
				Kind:         types.KindPlainText,
				Span:         types.Span{Start: textStart, End: upto},
				Raw:          s.src[textStart:upto],
				Translatable: true,
			})
		}
	}

	emit := func(el *types.StructuralElement) {
		top().children = append(top().children, el)
	}

	for pos < end {
		c := s.src[pos]

		switch c {
		case '%':
			flushText(pos)
			eol := pos
			for eol < end && s.src[eol] != '\n' {
				eol++
			}
			emit(&types.StructuralElement{
				Kind: types.KindComment,
				Span: types.Span{Start: pos, End: eol},
				Raw:  s.src[pos:eol],
			})
			pos = eol
			textStart = pos

		case '$':
			delim := "$"
			kind := types.KindInlineMath
			width := 1
			if pos+1 < end && s.src[pos+1] == '$' {
				delim = "$$"
				kind = types.KindDisplayMath
				width = 2
			}
			close := s.findMathClose(pos+width, end, delim)
			if close < 0 {
				s.issue(types.SeverityWarning, types.CategoryBalance, pos, pos+width,
					fmt.Sprintf("unmatched math delimiter %q, treated as plain text", delim))
				pos += width
				continue
			}
			flushText(pos)
			s.event(types.EventMathOpen, pos, delim)
			s.event(types.EventMathClose, close, delim)
			spanEnd := close + width
			emit(&types.StructuralElement{
				Kind: kind,
				Span: types.Span{Start: pos, End: spanEnd},
				Raw:  s.src[pos:spanEnd],
			})
			pos = spanEnd
			textStart = pos

		case '{':
			s.event(types.EventBraceOpen, pos, "")
			pos++

		case '}':
			s.event(types.EventBraceClose, pos, "")
			pos++

		case '\\':
			if pos+1 >= end {
				pos++
				continue
			}
			next := s.src[pos+1]
			if next == '[' || next == '(' {
				open := s.src[pos : pos+2]
				closeDelim := `\]`
				kind := types.KindDisplayMath
				if next == '(' {
					closeDelim = `\)`
					kind = types.KindInlineMath
				}
				close := strings.Index(s.src[pos+2:end], closeDelim)
				if close < 0 {
					s.issue(types.SeverityWarning, types.CategoryBalance, pos, pos+2,
						fmt.Sprintf("unmatched math delimiter %q, treated as plain text", open))
					pos += 2
					continue
				}
				close += pos + 2
				flushText(pos)
				s.event(types.EventMathOpen, pos, open)
				s.event(types.EventMathClose, close, open)
				emit(&types.StructuralElement{
					Kind: kind,
					Span: types.Span{Start: pos, End: close + 2},
					Raw:  s.src[pos : close+2],
				})
				pos = close + 2
				textStart = pos
				continue
			}
			if !isLetter(next) {
				// Escaped symbol such as \%, \$, \{, \\ stays in the text run.
				pos += 2
				continue
			}

			cmdStart := pos
			name, nameEnd := s.readMacroName(pos + 1)

			switch {
			case name == "begin":
				envName, tokenEnd, ok := s.readBraceWord(nameEnd)
				if !ok {
					// \begin without a brace group, keep as a bare command.
					flushText(cmdStart)
					emit(&types.StructuralElement{
						Kind:  types.KindCommand,
						Span:  types.Span{Start: cmdStart, End: nameEnd},
						Raw:   s.src[cmdStart:nameEnd],
						Macro: name,
					})
					s.issue(types.SeverityWarning, types.CategorySyntax, cmdStart, nameEnd,
						`\begin without environment name`)
					pos = tokenEnd
					textStart = pos
					continue
				}

				if verbatimEnvs[envName] {
					bodyEnd, spanEnd := s.findMatchingEnd(tokenEnd, end, envName)
					if spanEnd < 0 {
						return nil, types.NewAppErrorWithDetails(
							types.ErrMalformedSyntax,
							"unterminated verbatim-like environment",
							fmt.Sprintf(`\begin{%s} at offset %d has no matching \end`, envName, cmdStart),
							nil,
						)
					}
					_ = bodyEnd
					flushText(cmdStart)
					s.event(types.EventEnvBegin, cmdStart, envName)
					s.event(types.EventEnvEnd, spanEnd, envName)
					emit(&types.StructuralElement{
						Kind:     types.KindEnvironment,
						Span:     types.Span{Start: cmdStart, End: spanEnd},
						Raw:      s.src[cmdStart:spanEnd],
						EnvName:  envName,
						EnvDepth: len(stack) - 1 + len(outerEnvs),
					})
					pos = spanEnd
					textStart = pos
					continue
				}

				if opaqueEnvs[envName] {
					_, spanEnd := s.findMatchingEnd(tokenEnd, end, envName)
					if spanEnd < 0 {
						s.issue(types.SeverityError, types.CategoryEnvironment, cmdStart, tokenEnd,
							fmt.Sprintf(`unterminated \begin{%s}`, envName))
						flushText(cmdStart)
						emit(&types.StructuralElement{
							Kind:  types.KindCommand,
							Span:  types.Span{Start: cmdStart, End: tokenEnd},
							Raw:   s.src[cmdStart:tokenEnd],
							Macro: name,
						})
						pos = tokenEnd
						textStart = pos
						continue
					}
					flushText(cmdStart)
					s.event(types.EventEnvBegin, cmdStart, envName)
					s.event(types.EventEnvEnd, spanEnd, envName)
					emit(&types.StructuralElement{
						Kind:     types.KindEnvironment,
						Span:     types.Span{Start: cmdStart, End: spanEnd},
						Raw:      s.src[cmdStart:spanEnd],
						EnvName:  envName,
						EnvDepth: len(stack) - 1 + len(outerEnvs),
					})
					pos = spanEnd
					textStart = pos
					continue
				}

				// Regular environment: push a frame. Arguments immediately
				// after \begin{name} belong to the begin token, not the body.
				argEnd, err := s.skipArgGroups(tokenEnd, end)
				if err != nil {
					return nil, err
				}
				flushText(cmdStart)
				s.event(types.EventEnvBegin, cmdStart, envName)
				stack = append(stack, &envFrame{
					name:       envName,
					beginStart: cmdStart,
					bodyStart:  argEnd,
					depth:      len(stack) - 1 + len(outerEnvs),
				})
				pos = argEnd
				textStart = pos

			case name == "end":
				envName, tokenEnd, ok := s.readBraceWord(nameEnd)
				if !ok {
					flushText(cmdStart)
					emit(&types.StructuralElement{
						Kind:  types.KindCommand,
						Span:  types.Span{Start: cmdStart, End: nameEnd},
						Raw:   s.src[cmdStart:nameEnd],
						Macro: name,
					})
					s.issue(types.SeverityWarning, types.CategorySyntax, cmdStart, nameEnd,
						`\end without environment name`)
					pos = tokenEnd
					textStart = pos
					continue
				}

				matchIdx := -1
				for i := len(stack) - 1; i >= 1; i-- {
					if stack[i].name == envName {
						matchIdx = i
						break
					}
				}
				if matchIdx >= 0 {
					flushText(cmdStart)
					// Environments left open between here and the matching
					// frame are implicitly closed where this \end starts.
					for len(stack)-1 > matchIdx {
						frame := top()
						stack = stack[:len(stack)-1]
						s.issue(types.SeverityError, types.CategoryEnvironment, frame.beginStart, cmdStart,
							fmt.Sprintf(`\begin{%s} is implicitly closed by \end{%s}`, frame.name, envName))
						s.event(types.EventEnvEnd, cmdStart, frame.name)
						top().children = append(top().children, &types.StructuralElement{
							Kind:      types.KindEnvironment,
							Span:      types.Span{Start: frame.beginStart, End: cmdStart},
							Raw:       s.src[frame.beginStart:cmdStart],
							Children:  frame.children,
							BodyStart: frame.bodyStart,
							BodyEnd:   cmdStart,
							EnvName:   frame.name,
							EnvDepth:  frame.depth,
						})
					}
					s.event(types.EventEnvEnd, cmdStart, envName)
					frame := top()
					stack = stack[:len(stack)-1]
					top().children = append(top().children, &types.StructuralElement{
						Kind:      types.KindEnvironment,
						Span:      types.Span{Start: frame.beginStart, End: tokenEnd},
						Raw:       s.src[frame.beginStart:tokenEnd],
						Children:  frame.children,
						BodyStart: frame.bodyStart,
						BodyEnd:   cmdStart,
						EnvName:   envName,
						EnvDepth:  frame.depth,
					})
					pos = tokenEnd
					textStart = pos
					continue
				}

				// \end with no matching open environment: keep the text,
				// flag the issue.
				s.issue(types.SeverityError, types.CategoryEnvironment, cmdStart, tokenEnd,
					fmt.Sprintf(`\end{%s} without matching open environment`, envName))
				flushText(cmdStart)
				emit(&types.StructuralElement{
					Kind:  types.KindCommand,
					Span:  types.Span{Start: cmdStart, End: tokenEnd},
					Raw:   s.src[cmdStart:tokenEnd],
					Macro: name,
				})
				pos = tokenEnd
				textStart = pos

			case citationMacros[name] || referenceMacros[name]:
				optEnd := s.skipOptionalArgs(nameEnd, end)
				key, tokenEnd, ok := s.readBraceGroup(optEnd)
				if !ok {
					// Macro without its key argument degrades to a command.
					flushText(cmdStart)
					emit(&types.StructuralElement{
						Kind:  types.KindCommand,
						Span:  types.Span{Start: cmdStart, End: optEnd},
						Raw:   s.src[cmdStart:optEnd],
						Macro: name,
					})
					pos = optEnd
					textStart = pos
					continue
				}
				kind := types.KindCitation
				if referenceMacros[name] {
					kind = types.KindReference
				}
				flushText(cmdStart)
				emit(&types.StructuralElement{
					Kind:  kind,
					Span:  types.Span{Start: cmdStart, End: tokenEnd},
					Raw:   s.src[cmdStart:tokenEnd],
					Macro: name,
					Key:   key,
				})
				pos = tokenEnd
				textStart = pos

			default:
				el, tokenEnd, err := s.scanCommand(cmdStart, name, nameEnd, end, proseDepth, outerEnvs, len(stack)-1)
				if err != nil {
					return nil, err
				}
				flushText(cmdStart)
				emit(el)
				pos = tokenEnd
				textStart = pos
			}

		default:
			pos++
		}
	}

	flushText(end)

	// Unclosed environments at end of region: report each one, demote the
	// begin token to a command, and splice the collected children into the
	// parent so no text is discarded.
	for len(stack) > 1 {
		frame := top()
		stack = stack[:len(stack)-1]
		s.issue(types.SeverityError, types.CategoryEnvironment, frame.beginStart, frame.bodyStart,
			fmt.Sprintf(`\begin{%s} is never closed`, frame.name))
		s.event(types.EventEnvEnd, end, frame.name)
		parent := top()
		parent.children = append(parent.children, &types.StructuralElement{
			Kind:  types.KindCommand,
			Span:  types.Span{Start: frame.beginStart, End: frame.bodyStart},
			Raw:   s.src[frame.beginStart:frame.bodyStart],
			Macro: "begin",
		})
		parent.children = append(parent.children, frame.children...)
	}

	return root.children, nil
}

// scanCommand consumes a generic command with its bracket and brace arguments.
// For prose-bearing macros the final brace argument is parsed into children.
func (s *scanner) scanCommand(cmdStart int, name string, nameEnd, end, proseDepth int, outerEnvs []string, openFrames int) (*types.StructuralElement, int, error) {
	pos := nameEnd
	argCount := 0
	lastArgStart, lastArgEnd := -1, -1 // content offsets of the last brace group

	for pos < end {
		switch s.src[pos] {
		case '[':
			closing := s.findBracketClose(pos+1, end)
			if closing < 0 {
				// Not an argument after all; leave the bracket to the text run.
				return s.commandElement(cmdStart, pos, name, argCount, lastArgStart, lastArgEnd, proseDepth, outerEnvs)
			}
			s.event(types.EventBracketOpen, pos, "")
			s.event(types.EventBracketClose, closing, "")
			pos = closing + 1
		case '{':
			closing, err := s.findBraceClose(pos+1, end)
			if err != nil {
				return nil, 0, err
			}
			argCount++
			lastArgStart, lastArgEnd = pos+1, closing
			pos = closing + 1
		default:
			return s.commandElement(cmdStart, pos, name, argCount, lastArgStart, lastArgEnd, proseDepth, outerEnvs)
		}
	}
	return s.commandElement(cmdStart, pos, name, argCount, lastArgStart, lastArgEnd, proseDepth, outerEnvs)
}

func (s *scanner) commandElement(cmdStart, tokenEnd int, name string, argCount, lastArgStart, lastArgEnd, proseDepth int, outerEnvs []string) (*types.StructuralElement, int, error) {
	el := &types.StructuralElement{
		Kind:     types.KindCommand,
		Span:     types.Span{Start: cmdStart, End: tokenEnd},
		Raw:      s.src[cmdStart:tokenEnd],
		Macro:    name,
		ArgCount: argCount,
	}
	if proseMacros[name] && lastArgStart >= 0 && lastArgEnd > lastArgStart && proseDepth < maxProseDepth {
		children, err := s.scanRegion(lastArgStart, lastArgEnd, proseDepth+1, outerEnvs)
		if err != nil {
			return nil, 0, err
		}
		el.Children = children
		el.BodyStart = lastArgStart
		el.BodyEnd = lastArgEnd
	}
	return el, tokenEnd, nil
}

// readMacroName reads the letter run of a macro name starting at pos,
// including a trailing star. Returns the name and the offset past it.
func (s *scanner) readMacroName(pos int) (string, int) {
	i := pos
	for i < s.limit && isLetter(s.src[i]) {
		i++
	}
	name := s.src[pos:i]
	if i < s.limit && s.src[i] == '*' {
		i++
	}
	return name, i
}

// readBraceWord reads a simple {word} group with no nesting, as used by
// \begin/\end. Returns the word, the offset past the group, and whether a
// group was present.
func (s *scanner) readBraceWord(pos int) (string, int, bool) {
	if pos >= s.limit || s.src[pos] != '{' {
		return "", pos, false
	}
	closing := strings.IndexByte(s.src[pos:s.limit], '}')
	if closing < 0 {
		return "", pos, false
	}
	closing += pos
	return s.src[pos+1 : closing], closing + 1, true
}

// readBraceGroup reads a balanced {...} group returning its content.
func (s *scanner) readBraceGroup(pos int) (string, int, bool) {
	if pos >= s.limit || s.src[pos] != '{' {
		return "", pos, false
	}
	closing, err := s.findBraceClose(pos+1, s.limit)
	if err != nil {
		return "", pos, false
	}
	return s.src[pos+1 : closing], closing + 1, true
}

// findBraceClose finds the closing brace matching an opener just before pos.
// It records brace events for the trace. An unterminated group at end of file
// is a MalformedSyntaxError.
func (s *scanner) findBraceClose(pos, end int) (int, error) {
	s.event(types.EventBraceOpen, pos-1, "")
	depth := 1
	for i := pos; i < end; i++ {
		switch s.src[i] {
		case '\\':
			i++ // skip escaped character
		case '%':
			for i < end && s.src[i] != '\n' {
				i++
			}
		case '{':
			s.event(types.EventBraceOpen, i, "")
			depth++
		case '}':
			s.event(types.EventBraceClose, i, "")
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, types.NewAppErrorWithDetails(
		types.ErrMalformedSyntax,
		"unterminated brace argument",
		fmt.Sprintf("group opened at offset %d is never closed", pos-1),
		nil,
	)
}

// findBracketClose finds the matching ] for an optional argument, tracking
// nested braces. Returns -1 when no closing bracket exists before end.
func (s *scanner) findBracketClose(pos, end int) int {
	braceDepth := 0
	for i := pos; i < end; i++ {
		switch s.src[i] {
		case '\\':
			i++
		case '{':
			braceDepth++
		case '}':
			braceDepth--
		case ']':
			if braceDepth <= 0 {
				return i
			}
		}
	}
	return -1
}

// skipOptionalArgs advances past consecutive [...] groups.
func (s *scanner) skipOptionalArgs(pos, end int) int {
	for pos < end && s.src[pos] == '[' {
		closing := s.findBracketClose(pos+1, end)
		if closing < 0 {
			return pos
		}
		s.event(types.EventBracketOpen, pos, "")
		s.event(types.EventBracketClose, closing, "")
		pos = closing + 1
	}
	return pos
}

// skipArgGroups advances past consecutive [...] and {...} groups following a
// \begin token, e.g. the column spec of tabular.
func (s *scanner) skipArgGroups(pos, end int) (int, error) {
	for pos < end {
		switch s.src[pos] {
		case '[':
			closing := s.findBracketClose(pos+1, end)
			if closing < 0 {
				return pos, nil
			}
			s.event(types.EventBracketOpen, pos, "")
			s.event(types.EventBracketClose, closing, "")
			pos = closing + 1
		case '{':
			closing, err := s.findBraceClose(pos+1, end)
			if err != nil {
				return 0, err
			}
			pos = closing + 1
		default:
			return pos, nil
		}
	}
	return pos, nil
}

// findMathClose finds the next unescaped occurrence of delim ("$" or "$$").
// Returns -1 when the delimiter never closes before end.
func (s *scanner) findMathClose(pos, end int, delim string) int {
	for i := pos; i < end; i++ {
		switch s.src[i] {
		case '\\':
			i++
		case '$':
			if delim == "$$" {
				if i+1 < end && s.src[i+1] == '$' {
					return i
				}
				continue
			}
			return i
		}
	}
	return -1
}

// findMatchingEnd locates \end{name} for a begin at tokenEnd, counting nested
// same-name begins. Returns the body end (offset of the backslash of \end)
// and the span end (offset past \end{name}), or (-1, -1) when unterminated.
func (s *scanner) findMatchingEnd(tokenEnd, end int, name string) (int, int) {
	beginTag := `\begin{` + name + `}`
	endTag := `\end{` + name + `}`

	depth := 1
	searchPos := tokenEnd
	for depth > 0 && searchPos < end {
		nextBegin := strings.Index(s.src[searchPos:end], beginTag)
		nextEnd := strings.Index(s.src[searchPos:end], endTag)
		if nextEnd == -1 {
			return -1, -1
		}
		if nextBegin != -1 && nextBegin < nextEnd {
			depth++
			searchPos += nextBegin + len(beginTag)
			continue
		}
		depth--
		if depth == 0 {
			bodyEnd := searchPos + nextEnd
			return bodyEnd, bodyEnd + len(endTag)
		}
		searchPos += nextEnd + len(endTag)
	}
	return -1, -1
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
