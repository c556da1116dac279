package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"latex-project-translator/internal/parser"
	"latex-project-translator/internal/project"
	"latex-project-translator/internal/translator"
	"latex-project-translator/internal/types"
)

func buildProject(t *testing.T, sources map[string]string) *project.Analysis {
	t.Helper()
	files := make(map[string]*types.ProjectFile, len(sources))
	for path, src := range sources {
		res, err := parser.Parse(src)
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", path, err)
		}
		files[path] = &types.ProjectFile{
			Path:     path,
			Content:  src,
			Elements: res.Elements,
			Trace:    res.Trace,
		}
	}
	return project.Analyze(files)
}

func upperCaseService() translator.Service {
	return translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		return strings.ToUpper(text), nil
	})
}

func outcomeOf(t *testing.T, a *project.Analysis, path string) types.FileOutcome {
	t.Helper()
	f, ok := a.Files[path]
	if !ok {
		t.Fatalf("no such file %s", path)
	}
	return f.Outcome
}

// ============================================================================
// Happy path
// ============================================================================

func TestRunTranslatesProject(t *testing.T) {
	a := buildProject(t, map[string]string{
		"main.tex":  "Hello world.\n\\input{child}\n",
		"child.tex": "Child text with $x$ math.\n",
	})

	o := New(DefaultConfig(), upperCaseService(), a)
	rep := o.Run(context.Background())

	if rep.Summary.Failed != 0 || rep.Summary.Cancelled != 0 {
		t.Fatalf("unexpected summary: %+v", rep.Summary)
	}
	for _, path := range []string{"main.tex", "child.tex"} {
		if got := outcomeOf(t, a, path); got != types.OutcomeValidatedClean {
			t.Errorf("%s: expected validated_clean, got %s", path, got)
		}
	}

	got := parser.Recompose(a.Files["child.tex"].Elements)
	if !strings.Contains(got, "CHILD TEXT WITH") {
		t.Errorf("text runs should be translated: %q", got)
	}
	if !strings.Contains(got, "$x$") {
		t.Errorf("math must stay untouched: %q", got)
	}
}

func TestZeroTranslatableFileIsByteIdentical(t *testing.T) {
	src := "% preamble note\n\\[ E = mc^2 \\]\n\\begin{equation}\n\\alpha + \\beta\n\\end{equation}\n"
	a := buildProject(t, map[string]string{"main.tex": src})

	var calls int32
	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		atomic.AddInt32(&calls, 1)
		return strings.ToUpper(text), nil
	})

	New(DefaultConfig(), svc, a).Run(context.Background())

	if got := outcomeOf(t, a, "main.tex"); got != types.OutcomeValidatedClean {
		t.Fatalf("expected validated_clean, got %s", got)
	}
	if got := parser.Recompose(a.Files["main.tex"].Elements); got != src {
		t.Errorf("output must be byte-identical to the input, got %q", got)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("no translation calls expected for a file without prose, got %d", n)
	}
}

// ============================================================================
// Scheduling
// ============================================================================

func TestDependentsWaitForIncluders(t *testing.T) {
	a := buildProject(t, map[string]string{
		"main.tex":  "First paragraph.\nSecond paragraph.\n\\input{child}\n",
		"child.tex": "Child paragraph.\n",
	})

	var mu sync.Mutex
	var order []string
	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		mu.Lock()
		order = append(order, tctx.File)
		mu.Unlock()
		return text, nil
	})

	New(DefaultConfig(), svc, a).Run(context.Background())

	sawChild := false
	for _, f := range order {
		if f == "child.tex" {
			sawChild = true
		}
		if f == "main.tex" && sawChild {
			t.Fatalf("included file started before its includer finished: %v", order)
		}
	}
	if !sawChild {
		t.Fatal("child.tex was never translated")
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	sources := map[string]string{}
	for _, name := range []string{"a.tex", "b.tex", "c.tex", "d.tex", "e.tex"} {
		sources[name] = "independent text\n"
	}
	a := buildProject(t, sources)

	var active, peak int32
	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return text, nil
	})

	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	New(cfg, svc, a).Run(context.Background())

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", p)
	}
}

func TestCycleBlockedFilesStayParsed(t *testing.T) {
	a := buildProject(t, map[string]string{
		"a.tex":    "\\input{b}\n",
		"b.tex":    "\\input{a}\n",
		"free.tex": "translatable text\n",
	})

	rep := New(DefaultConfig(), upperCaseService(), a).Run(context.Background())

	if got := outcomeOf(t, a, "a.tex"); got != types.OutcomeParsed {
		t.Errorf("a.tex: expected parsed, got %s", got)
	}
	if got := outcomeOf(t, a, "free.tex"); got != types.OutcomeValidatedClean {
		t.Errorf("free.tex: expected validated_clean, got %s", got)
	}
	if rep.Summary.Blocked != 2 {
		t.Errorf("expected 2 blocked files in summary, got %d", rep.Summary.Blocked)
	}
}

// ============================================================================
// Failure handling
// ============================================================================

func TestPermanentFailureDegradesElementOnly(t *testing.T) {
	a := buildProject(t, map[string]string{
		"main.tex":  "Main text.\n\\input{child}\n",
		"child.tex": "Child text.\n",
	})

	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		if tctx.File == "main.tex" {
			return "", types.NewAppError(types.ErrAPICall, "content rejected", nil)
		}
		return strings.ToUpper(text), nil
	})

	New(DefaultConfig(), svc, a).Run(context.Background())

	// A permanent service failure leaves the element untranslated and the
	// file reaches a terminal state in degraded form, not failure.
	main := a.Files["main.tex"]
	if main.Outcome != types.OutcomeValidatedClean {
		t.Fatalf("main.tex: expected validated_clean, got %s", main.Outcome)
	}
	if got := parser.Recompose(main.Elements); got != main.Content {
		t.Errorf("untranslated elements must keep original text, got %q", got)
	}
	warned := false
	for _, issue := range main.Issues {
		if issue.Category == types.CategoryTranslation && issue.Severity == types.SeverityWarning {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a translation warning on the degraded file")
	}
}

func TestFailedDependencyIsOptimistic(t *testing.T) {
	a := buildProject(t, map[string]string{
		"main.tex":  "Main {a} {b} text.\n\\input{child}\n",
		"child.tex": "Child text.\n",
	})

	// Structurally destroy main.tex beyond repair so it fails validation,
	// then watch how its dependent is treated.
	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		if tctx.File == "main.tex" {
			return strings.ReplaceAll(text, "}", ""), nil
		}
		return strings.ToUpper(text), nil
	})

	New(DefaultConfig(), svc, a).Run(context.Background())

	if got := outcomeOf(t, a, "main.tex"); got != types.OutcomeUnrepairableFailed {
		t.Fatalf("main.tex: expected unrepairable_failed, got %s", got)
	}

	// The dependent file is still translated, with lenient validation and a
	// warning instead of a hard failure.
	child := a.Files["child.tex"]
	if child.Outcome != types.OutcomeValidatedClean {
		t.Fatalf("child.tex: expected validated_clean, got %s", child.Outcome)
	}
	warned := false
	for _, issue := range child.Issues {
		if issue.Category == types.CategoryDependency && issue.Severity == types.SeverityWarning {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a dependency warning on the dependent file")
	}
}

// ============================================================================
// Repair loop
// ============================================================================

func TestRepairLoopFixesFullWidthCharacters(t *testing.T) {
	a := buildProject(t, map[string]string{
		"main.tex": "keep {braces} here\n",
	})

	// A backend that substitutes full-width braces, a common failure mode.
	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		out := strings.ReplaceAll(text, "{", "｛")
		return strings.ReplaceAll(out, "}", "｝"), nil
	})

	rep := New(DefaultConfig(), svc, a).Run(context.Background())

	if got := outcomeOf(t, a, "main.tex"); got != types.OutcomeRepaired {
		t.Fatalf("expected repaired, got %s", got)
	}
	final := parser.Recompose(a.Files["main.tex"].Elements)
	if !strings.Contains(final, "{braces}") {
		t.Errorf("full-width braces should be narrowed, got %q", final)
	}
	if rep.Summary.Repaired != 1 {
		t.Errorf("expected 1 repaired file in summary, got %d", rep.Summary.Repaired)
	}
}

func TestUnrepairableDamageRestoresOriginal(t *testing.T) {
	a := buildProject(t, map[string]string{
		"main.tex": "text {a} {b} tail\n",
	})

	// Dropping two close braces is beyond the repair heuristic.
	svc := translator.Func(func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
		return strings.ReplaceAll(text, "}", ""), nil
	})

	New(DefaultConfig(), svc, a).Run(context.Background())

	if got := outcomeOf(t, a, "main.tex"); got != types.OutcomeUnrepairableFailed {
		t.Fatalf("expected unrepairable_failed, got %s", got)
	}
	if got := parser.Recompose(a.Files["main.tex"].Elements); got != a.Files["main.tex"].Content {
		t.Errorf("unrepairable file must fall back to original text, got %q", got)
	}
}

// ============================================================================
// Cancellation
// ============================================================================

func TestCancellationBeforeRun(t *testing.T) {
	a := buildProject(t, map[string]string{
		"a.tex": "text a\n",
		"b.tex": "text b\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := New(DefaultConfig(), upperCaseService(), a).Run(ctx)

	if rep.Summary.Cancelled != 2 {
		t.Errorf("expected both files cancelled, got %+v", rep.Summary)
	}
}

func TestCancellationMidRun(t *testing.T) {
	sources := map[string]string{}
	for _, name := range []string{"a.tex", "b.tex", "c.tex", "d.tex"} {
		sources[name] = "some text\n"
	}
	a := buildProject(t, sources)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	svc := translator.Func(func(c context.Context, text string, tctx *types.TranslationContext) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
		}
		if c.Err() != nil {
			return "", c.Err()
		}
		return text, nil
	})

	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	rep := New(cfg, svc, a).Run(ctx)

	if rep.Summary.Cancelled == 0 {
		t.Error("expected cancelled files after mid-run cancellation")
	}
	for path, f := range a.Files {
		if f.Outcome == types.OutcomeCancelled {
			if got := parser.Recompose(f.Elements); got != f.Content {
				t.Errorf("%s: cancelled file must keep original text", path)
			}
		}
	}
}
