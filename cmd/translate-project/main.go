// Command translate-project translates a LaTeX project tree into a target
// language while preserving its structure, then validates and writes the
// translated tree alongside a run report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"latex-project-translator/internal/compilecheck"
	"latex-project-translator/internal/config"
	"latex-project-translator/internal/filestore"
	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/orchestrator"
	"latex-project-translator/internal/parser"
	"latex-project-translator/internal/project"
	"latex-project-translator/internal/report"
	"latex-project-translator/internal/translator"
	"latex-project-translator/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to the JSON configuration file")
		projectDir  = flag.String("project", "", "path to the LaTeX project root (required)")
		outDir      = flag.String("out", "", "output directory (default: <project>-translated)")
		lang        = flag.String("lang", "", "target language override")
		reportPath  = flag.String("report", "", "report file (default: <out>/translation-report.json)")
		dryRun      = flag.Bool("dry-run", false, "analyze the project and print the estimate without translating")
		compile     = flag.Bool("compile", false, "compile the translated project afterwards")
		writeConfig = flag.String("write-config", "", "write a starter configuration file and exit")
	)
	flag.Parse()

	if *writeConfig != "" {
		if err := config.Default().Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Printf("wrote %s\n", *writeConfig)
		return 0
	}
	if *projectDir == "" {
		fmt.Fprintln(os.Stderr, "error: -project is required")
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if *lang != "" {
		cfg.TargetLanguage = *lang
	}
	if *compile {
		cfg.Compile.Enabled = true
	}
	if *outDir == "" {
		*outDir = filepath.Clean(*projectDir) + "-translated"
	}
	if *reportPath == "" {
		*reportPath = filepath.Join(*outDir, "translation-report.json")
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := filestore.New(*projectDir)
	files, passthrough, err := store.LoadProject()
	if err != nil {
		logger.Error("failed to load project", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "error: no .tex files found under the project root")
		return 1
	}

	// Files the parser rejects outright are carried to the output unchanged
	// and reported as failed; the rest of the project still translates.
	parseFailed := make(map[string]error)
	for path, file := range files {
		res, perr := parser.Parse(file.Content)
		if perr != nil {
			logger.Error("file failed to parse", perr, logger.String("file", path))
			parseFailed[path] = perr
			delete(files, path)
			continue
		}
		file.Elements = res.Elements
		file.Trace = res.Trace
		for _, issue := range res.Issues {
			issue.File = path
			file.Issues = append(file.Issues, issue)
		}
	}

	analysis := project.Analyze(files)
	estimate := report.EstimateProject(files)

	if *dryRun {
		fmt.Printf("project: %s\n", *projectDir)
		fmt.Printf("main file: %s\n", analysis.MainFile)
		fmt.Printf("files: %d (unparsable: %d, cycle-blocked: %d)\n",
			estimate.Files, len(parseFailed), len(analysis.Blocked))
		fmt.Printf("translatable runs: %d (%d bytes)\n",
			estimate.TranslatableRuns, estimate.TranslatableBytes)
		for _, issue := range analysis.Issues {
			fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.File, issue.Description)
		}
		return 0
	}

	svc, cache, err := buildService(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize translation service", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	rep := orchestrator.New(cfg.OrchestratorConfig(), svc, analysis).Run(ctx)

	for path, perr := range parseFailed {
		rep.Files = append(rep.Files, report.FileReport{
			Path:    path,
			Outcome: types.OutcomeUnrepairableFailed,
			Issues: []types.ValidationIssue{{
				Severity:    types.SeverityError,
				Category:    types.CategorySyntax,
				File:        path,
				Description: perr.Error(),
			}},
		})
	}
	rep.Finalize()

	if err := writeOutput(store, *outDir, files, parseFailed, passthrough); err != nil {
		logger.Error("failed to write output tree", err)
		return 1
	}
	if cache != nil {
		if err := cache.Save(); err != nil {
			logger.Warn("failed to persist translation cache", logger.Err(err))
		}
	}
	if err := rep.Save(*reportPath); err != nil {
		logger.Warn("failed to save report", logger.Err(err))
	}
	fmt.Print(rep.Render())

	runCompileCheck(ctx, cfg, *outDir, analysis.MainFile)

	if rep.Summary.Failed > 0 || len(parseFailed) > 0 {
		return 1
	}
	if rep.Summary.Cancelled > 0 {
		return 130
	}
	return 0
}

// buildService assembles the translation stack: chat backend, retry, cache.
func buildService(ctx context.Context, cfg *config.Config) (translator.Service, *translator.Cache, error) {
	chat, err := translator.NewChatService(ctx, cfg.ChatConfig())
	if err != nil {
		return nil, nil, err
	}
	svc := translator.WithRetry(chat, cfg.RetryAttempts, cfg.RetryBaseDelay())

	var cache *translator.Cache
	if cfg.CachePath != "" {
		cache = translator.NewCache(cfg.CachePath)
		if err := cache.Load(); err != nil {
			logger.Warn("translation cache unavailable", logger.Err(err))
		}
		svc = translator.WithCache(svc, cache)
	}
	return svc, cache, nil
}

// writeOutput recomposes every file into the output tree. Unparsable files
// and non-LaTeX files are copied through unchanged.
func writeOutput(store *filestore.Store, outDir string, files map[string]*types.ProjectFile, parseFailed map[string]error, passthrough []string) error {
	for path, file := range files {
		if err := store.WriteFile(outDir, path, parser.Recompose(file.Elements)); err != nil {
			return err
		}
	}
	for path := range parseFailed {
		passthrough = append(passthrough, path)
	}
	return store.CopyPassthrough(outDir, passthrough)
}

// runCompileCheck optionally compiles the output tree; a failure here is
// advisory and never changes the exit code.
func runCompileCheck(ctx context.Context, cfg *config.Config, outDir, mainFile string) {
	res, err := compilecheck.Run(ctx, compilecheck.Config{
		Enabled:        cfg.Compile.Enabled,
		Engine:         cfg.Compile.Engine,
		TimeoutSeconds: cfg.Compile.TimeoutSeconds,
	}, outDir, mainFile)
	if err != nil {
		logger.Warn("compilation check errored", logger.Err(err))
		return
	}
	if res == nil {
		return
	}
	if res.Succeeded {
		fmt.Printf("compile check: ok (%d pages, %s)\n", res.Pages, res.PDFPath)
	} else {
		fmt.Printf("compile check: failed (%d log errors)\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  ! %s\n", e)
		}
	}
}
