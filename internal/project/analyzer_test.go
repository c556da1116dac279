package project

import (
	"testing"

	"latex-project-translator/internal/parser"
	"latex-project-translator/internal/types"
)

// parseProject builds the parsed file map that Analyze expects.
func parseProject(t *testing.T, sources map[string]string) map[string]*types.ProjectFile {
	t.Helper()
	files := make(map[string]*types.ProjectFile, len(sources))
	for path, src := range sources {
		res, err := parser.Parse(src)
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", path, err)
		}
		files[path] = &types.ProjectFile{Path: path, Content: src, Elements: res.Elements}
	}
	return files
}

// ============================================================================
// Include edges
// ============================================================================

func TestAnalyzeIncludeEdgesAndInference(t *testing.T) {
	files := parseProject(t, map[string]string{
		"main.tex":           "\\documentclass{article}\n\\input{chapters/intro}\n\\include{chapters/body.tex}\n",
		"chapters/intro.tex": "intro text\n",
		"chapters/body.tex":  "\\input{appendix}\n",
		"appendix.tex":       "appendix text\n",
	})

	a := Analyze(files)

	if got := a.Graph.Includes("main.tex"); len(got) != 2 {
		t.Fatalf("expected 2 includes from main.tex, got %v", got)
	}
	// Extension-free targets resolve with .tex inferred, relative to the
	// including file's directory first, then the project root.
	if got := files["main.tex"].Includes; len(got) != 2 ||
		got[0] != "chapters/intro.tex" || got[1] != "chapters/body.tex" {
		t.Errorf("unexpected includes for main.tex: %v", got)
	}
	if got := files["chapters/body.tex"].Includes; len(got) != 1 || got[0] != "appendix.tex" {
		t.Errorf("root fallback failed: %v", got)
	}
	if len(a.Blocked) != 0 {
		t.Errorf("expected no blocked files, got %v", a.Blocked)
	}
	if a.Order[0] != "main.tex" {
		t.Errorf("main.tex should come first in order, got %v", a.Order)
	}
}

func TestAnalyzeExternalIncludeWarns(t *testing.T) {
	files := parseProject(t, map[string]string{
		"main.tex": "\\input{missing-chapter}\n",
	})

	a := Analyze(files)

	if len(files["main.tex"].Includes) != 0 {
		t.Error("external target must not produce an edge")
	}
	found := false
	for _, issue := range a.Issues {
		if issue.Category == types.CategoryDependency && issue.Severity == types.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Error("expected a dependency warning for the external target")
	}
}

func TestAnalyzeCycleIssue(t *testing.T) {
	files := parseProject(t, map[string]string{
		"a.tex": "\\input{b}\n",
		"b.tex": "\\input{a}\n",
	})

	a := Analyze(files)

	if len(a.Blocked) != 2 {
		t.Fatalf("expected both files blocked, got %v", a.Blocked)
	}
	errors := 0
	for _, issue := range a.Issues {
		if issue.Category == types.CategoryDependency && issue.Severity == types.SeverityError {
			errors++
		}
	}
	if errors != 2 {
		t.Errorf("expected a cycle error per blocked file, got %d", errors)
	}
}

// ============================================================================
// Symbol registry
// ============================================================================

func TestAnalyzeRegistry(t *testing.T) {
	files := parseProject(t, map[string]string{
		"defs.tex": `\newcommand{\mynote}[1]{\textit{#1}}
\def\shortcut{xyz}
\DeclareMathOperator{\argmax}{arg\,max}
\newtheorem{lemma}{Lemma}
\newenvironment{aside}{\begin{quote}}{\end{quote}}
`,
		"body.tex": `\label{sec:body}
\bibitem{knuth84}
Uses \ref{sec:body} and \cite{knuth84,lamport94}.
`,
	})

	a := Analyze(files)
	r := a.Registry

	for _, cmd := range []string{"mynote", "shortcut", "argmax"} {
		if r.Commands[cmd] != "defs.tex" {
			t.Errorf("command %q: expected defs.tex, got %q", cmd, r.Commands[cmd])
		}
	}
	for _, env := range []string{"lemma", "aside"} {
		if r.Environments[env] != "defs.tex" {
			t.Errorf("environment %q: expected defs.tex, got %q", env, r.Environments[env])
		}
	}
	if r.Labels["sec:body"] != "body.tex" {
		t.Errorf("label lookup failed: %v", r.Labels)
	}
	if r.Bibitems["knuth84"] != "body.tex" {
		t.Errorf("bibitem lookup failed: %v", r.Bibitems)
	}

	body := files["body.tex"]
	if len(body.UsedReferences) != 1 || body.UsedReferences[0] != "sec:body" {
		t.Errorf("unexpected used references: %v", body.UsedReferences)
	}
	if len(body.UsedCitations) != 2 {
		t.Errorf("citation key list should split on commas: %v", body.UsedCitations)
	}
}

func TestAnalyzeOpaqueBodies(t *testing.T) {
	files := parseProject(t, map[string]string{
		"main.tex": `\begin{equation}\label{eq:energy}E=mc^2\end{equation}
\[ F = ma \label{eq:force} \]
\begin{align}x &= y \quad \text{per \cite{knuth84}, cf. \ref{eq:energy}}\end{align}
See \ref{eq:force}.
`,
	})

	a := Analyze(files)

	for _, key := range []string{"eq:energy", "eq:force"} {
		if a.Registry.Labels[key] != "main.tex" {
			t.Errorf("label %q inside math should be registered: %v", key, a.Registry.Labels)
		}
	}

	main := files["main.tex"]
	refs := make(map[string]bool, len(main.UsedReferences))
	for _, key := range main.UsedReferences {
		refs[key] = true
	}
	if !refs["eq:energy"] || !refs["eq:force"] {
		t.Errorf("references inside math should be recorded: %v", main.UsedReferences)
	}
	if len(main.UsedCitations) != 1 || main.UsedCitations[0] != "knuth84" {
		t.Errorf("citations inside math should be recorded: %v", main.UsedCitations)
	}
}

func TestRedefinitionWarns(t *testing.T) {
	files := parseProject(t, map[string]string{
		"a.tex": `\newcommand{\dup}{one}`,
		"b.tex": `\newcommand{\dup}{two}`,
	})

	a := Analyze(files)

	if a.Registry.Commands["dup"] != "a.tex" {
		t.Errorf("first definition must win: %v", a.Registry.Commands)
	}
	warnings := 0
	for _, issue := range a.Issues {
		if issue.Category == types.CategoryDefinition && issue.Severity == types.SeverityWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("expected one redefinition warning, got %d", warnings)
	}
}

// ============================================================================
// Main file detection
// ============================================================================

func TestDetectMainFileByName(t *testing.T) {
	files := parseProject(t, map[string]string{
		"main.tex":  "body\n",
		"other.tex": "\\documentclass{article}\n",
	})
	a := Analyze(files)
	if a.MainFile != "main.tex" {
		t.Errorf("expected main.tex, got %q", a.MainFile)
	}
}

func TestDetectMainFileByDocumentclass(t *testing.T) {
	files := parseProject(t, map[string]string{
		"body.tex":  "just text\n",
		"entry.tex": "\\documentclass{article}\n\\begin{document}\n\\end{document}\n",
	})
	a := Analyze(files)
	if a.MainFile != "entry.tex" {
		t.Errorf("expected entry.tex, got %q", a.MainFile)
	}
}
