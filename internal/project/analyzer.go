// Package project analyzes a parsed LaTeX project as a whole: it builds the
// include dependency graph, computes a deterministic processing order, and
// collects the project-wide symbol registry used for cross-file validation.
package project

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// includeMacros map the macros that pull another file into the document.
var includeMacros = map[string]bool{
	"input": true, "include": true, "subfile": true, "InputIfFileExists": true,
}

// commandDefiners take the defined macro as their first brace argument.
var commandDefiners = map[string]bool{
	"newcommand": true, "renewcommand": true, "providecommand": true,
	"DeclareMathOperator": true,
}

// environmentDefiners take the defined environment name as their first brace
// argument.
var environmentDefiners = map[string]bool{
	"newenvironment": true, "renewenvironment": true, "newtheorem": true,
}

// mainFileCandidates are tried in order when locating the project main file,
// before falling back to a \documentclass scan.
var mainFileCandidates = []string{"main.tex", "paper.tex", "article.tex", "thesis.tex", "report.tex"}

// The parser keeps math and verbatim-like environment bodies opaque, but
// \label inside an equation is the standard way to label it, and citations
// appear in math too. These patterns pull symbol definitions and uses out of
// opaque bodies. Longer macro names come first so the alternation picks them.
var (
	opaqueLabelPattern = regexp.MustCompile(`\\label\s*\{([^{}]*)\}`)
	opaqueRefPattern   = regexp.MustCompile(`\\(?:eqref|pageref|autoref|nameref|cref|Cref|vref|ref)\s*(?:\[[^\]]*\])?\{([^{}]*)\}`)
	opaqueCitePattern  = regexp.MustCompile(`\\(?:citeauthor|citeyear|citealt|citealp|citep|citet|parencite|textcite|autocite|footcite|cite)\s*(?:\[[^\]]*\])?\{([^{}]*)\}`)
)

// SymbolRegistry maps every project-defined symbol to its defining file.
// When a symbol is defined in more than one file the lexically smallest
// defining path wins, which keeps the registry deterministic.
type SymbolRegistry struct {
	Commands     map[string]string
	Environments map[string]string
	Labels       map[string]string
	Bibitems     map[string]string
}

func newSymbolRegistry() *SymbolRegistry {
	return &SymbolRegistry{
		Commands:     make(map[string]string),
		Environments: make(map[string]string),
		Labels:       make(map[string]string),
		Bibitems:     make(map[string]string),
	}
}

// register records a definition and reports whether the name was already
// defined.
func register(m map[string]string, name, file string) bool {
	if existing, ok := m[name]; ok {
		if file < existing {
			m[name] = file
		}
		return true
	}
	m[name] = file
	return false
}

// Analysis is the result of analyzing a parsed project.
type Analysis struct {
	Files    map[string]*types.ProjectFile
	Graph    *Graph
	Registry *SymbolRegistry
	// Order lists files in dependency order: every file appears after all of
	// its includers. Blocked lists files excluded from Order by a cycle.
	Order    []string
	Blocked  []string
	MainFile string
	Issues   []types.ValidationIssue
}

// Analyze builds the dependency graph and symbol registry over the given
// parsed files, keyed by slash-separated project-relative path. Files must
// already carry their parsed Elements.
func Analyze(files map[string]*types.ProjectFile) *Analysis {
	a := &Analysis{
		Files:    files,
		Graph:    NewGraph(),
		Registry: newSymbolRegistry(),
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		a.Graph.AddNode(p)
		a.scanFile(files[p])
	}

	a.Order, a.Blocked = a.Graph.TopologicalOrder()
	for _, p := range a.Blocked {
		a.Issues = append(a.Issues, types.ValidationIssue{
			Severity:    types.SeverityError,
			Category:    types.CategoryDependency,
			File:        p,
			Description: "file is part of an include cycle or reachable only through one",
		})
	}

	a.MainFile = detectMainFile(files, paths)

	logger.Info("project analysis complete",
		logger.Int("files", len(files)),
		logger.Int("ordered", len(a.Order)),
		logger.Int("blocked", len(a.Blocked)),
		logger.String("main_file", a.MainFile))
	return a
}

// scanFile extracts includes, definitions, and used symbols from one file's
// element tree and records them in the graph, the registry, and the file.
func (a *Analysis) scanFile(file *types.ProjectFile) {
	var prevMacro string

	var walk func(els []*types.StructuralElement)
	walk = func(els []*types.StructuralElement) {
		for _, el := range els {
			switch el.Kind {
			case types.KindCitation:
				for _, key := range splitKeys(el.Key) {
					file.UsedCitations = append(file.UsedCitations, key)
				}
			case types.KindReference:
				file.UsedReferences = append(file.UsedReferences, el.Key)
			case types.KindCommand:
				a.scanCommand(file, el, prevMacro)
			case types.KindInlineMath, types.KindDisplayMath:
				a.scanOpaqueBody(file, el)
			case types.KindEnvironment:
				if el.IsLeaf() {
					a.scanOpaqueBody(file, el)
				}
			}
			if el.Kind == types.KindCommand {
				prevMacro = el.Macro
			} else {
				prevMacro = ""
			}
			if !el.IsLeaf() {
				walk(el.Children)
			}
		}
	}
	walk(file.Elements)

	file.UsedCitations = dedupe(file.UsedCitations)
	file.UsedReferences = dedupe(file.UsedReferences)
}

func (a *Analysis) scanCommand(file *types.ProjectFile, el *types.StructuralElement, prevMacro string) {
	switch {
	case includeMacros[el.Macro]:
		target := firstBraceArg(el.Raw)
		if target == "" {
			return
		}
		a.addInclude(file, el, target)

	case commandDefiners[el.Macro]:
		name := strings.TrimPrefix(strings.TrimSpace(firstBraceArg(el.Raw)), `\`)
		if name != "" {
			file.DefinedCommands = append(file.DefinedCommands, name)
			if register(a.Registry.Commands, name, file.Path) {
				a.redefinitionWarning(file, el, `command \`+name)
			}
		}

	case environmentDefiners[el.Macro]:
		name := strings.TrimSpace(firstBraceArg(el.Raw))
		if name != "" {
			file.DefinedEnvironments = append(file.DefinedEnvironments, name)
			if register(a.Registry.Environments, name, file.Path) {
				a.redefinitionWarning(file, el, "environment "+name)
			}
		}

	case el.Macro == "label":
		if key := firstBraceArg(el.Raw); key != "" {
			register(a.Registry.Labels, key, file.Path)
		}

	case el.Macro == "bibitem":
		if key := firstBraceArg(el.Raw); key != "" {
			register(a.Registry.Bibitems, key, file.Path)
		}

	default:
		// \def\name{...} parses as two adjacent commands.
		if prevMacro == "def" && el.Macro != "" && el.ArgCount > 0 {
			file.DefinedCommands = append(file.DefinedCommands, el.Macro)
			register(a.Registry.Commands, el.Macro, file.Path)
		}
	}
}

// scanOpaqueBody extracts \label definitions and reference/citation uses from
// an element whose body the parser left unparsed: math spans and the leaf
// environments for math, code, and drawings.
func (a *Analysis) scanOpaqueBody(file *types.ProjectFile, el *types.StructuralElement) {
	for _, m := range opaqueLabelPattern.FindAllStringSubmatch(el.Raw, -1) {
		if key := strings.TrimSpace(m[1]); key != "" {
			register(a.Registry.Labels, key, file.Path)
		}
	}
	for _, m := range opaqueRefPattern.FindAllStringSubmatch(el.Raw, -1) {
		if key := strings.TrimSpace(m[1]); key != "" {
			file.UsedReferences = append(file.UsedReferences, key)
		}
	}
	for _, m := range opaqueCitePattern.FindAllStringSubmatch(el.Raw, -1) {
		file.UsedCitations = append(file.UsedCitations, splitKeys(m[1])...)
	}
}

// redefinitionWarning notes a symbol defined more than once. The first
// definition stays in the registry.
func (a *Analysis) redefinitionWarning(file *types.ProjectFile, el *types.StructuralElement, symbol string) {
	a.Issues = append(a.Issues, types.ValidationIssue{
		Severity:    types.SeverityWarning,
		Category:    types.CategoryDefinition,
		File:        file.Path,
		ElementSpan: &types.Span{Start: el.Span.Start, End: el.Span.End},
		Description: fmt.Sprintf("%s is redefined; the first definition wins", symbol),
	})
}

// addInclude resolves an include target against the project file set. Targets
// without an extension get .tex inferred. Targets that resolve outside the
// project produce a warning and no edge.
func (a *Analysis) addInclude(file *types.ProjectFile, el *types.StructuralElement, target string) {
	resolved := resolveInclude(file.Path, target, a.Files)
	if resolved == "" {
		a.Issues = append(a.Issues, types.ValidationIssue{
			Severity:    types.SeverityWarning,
			Category:    types.CategoryDependency,
			File:        file.Path,
			ElementSpan: &types.Span{Start: el.Span.Start, End: el.Span.End},
			Description: fmt.Sprintf("include target %q not found in project, edge skipped", target),
		})
		return
	}
	file.Includes = append(file.Includes, resolved)
	a.Graph.AddEdge(file.Path, resolved)
}

// resolveInclude maps an include target to a project file path, or "" when
// the target is external. Targets are resolved relative to the including
// file's directory first, then against the project root.
func resolveInclude(includer, target string, files map[string]*types.ProjectFile) string {
	target = strings.TrimSpace(target)
	candidates := []string{
		path.Join(path.Dir(includer), target),
		path.Clean(target),
	}
	for _, c := range candidates {
		if _, ok := files[c]; ok {
			return c
		}
		if !strings.HasSuffix(c, ".tex") {
			if _, ok := files[c+".tex"]; ok {
				return c + ".tex"
			}
		}
	}
	return ""
}

// detectMainFile finds the project main file: first by conventional base
// name, then by scanning for \documentclass, then the lexically smallest
// .tex file.
func detectMainFile(files map[string]*types.ProjectFile, sortedPaths []string) string {
	for _, candidate := range mainFileCandidates {
		for _, p := range sortedPaths {
			if path.Base(p) == candidate {
				return p
			}
		}
	}
	for _, p := range sortedPaths {
		if hasDocumentclass(files[p].Elements) {
			return p
		}
	}
	for _, p := range sortedPaths {
		if strings.HasSuffix(p, ".tex") {
			return p
		}
	}
	if len(sortedPaths) > 0 {
		return sortedPaths[0]
	}
	return ""
}

func hasDocumentclass(els []*types.StructuralElement) bool {
	for _, el := range els {
		if el.Kind == types.KindCommand && el.Macro == "documentclass" {
			return true
		}
		if !el.IsLeaf() && hasDocumentclass(el.Children) {
			return true
		}
	}
	return false
}

// firstBraceArg returns the content of the first balanced brace group in raw,
// skipping any leading optional [..] argument.
func firstBraceArg(raw string) string {
	i := 0
	for i < len(raw) {
		switch raw[i] {
		case '[':
			closing := strings.IndexByte(raw[i:], ']')
			if closing < 0 {
				return ""
			}
			i += closing + 1
		case '{':
			depth := 0
			for j := i; j < len(raw); j++ {
				switch raw[j] {
				case '\\':
					j++
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						return raw[i+1 : j]
					}
				}
			}
			return ""
		default:
			i++
		}
	}
	return ""
}

func splitKeys(keyList string) []string {
	parts := strings.Split(keyList, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
