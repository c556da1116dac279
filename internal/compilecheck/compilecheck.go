// Package compilecheck optionally compiles the translated project and
// verifies the produced PDF, as an end-to-end smoke test of the output tree.
// It requires a TeX toolchain on PATH and is disabled by default.
package compilecheck

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// Config controls the compilation check.
type Config struct {
	Enabled        bool
	Engine         string // pdflatex or xelatex
	TimeoutSeconds int
}

// Result describes one compilation attempt.
type Result struct {
	Succeeded bool     `json:"succeeded"`
	PDFPath   string   `json:"pdf_path,omitempty"`
	Pages     int      `json:"pages,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Run compiles mainFile inside projectDir and verifies the PDF. A nil result
// with nil error means the check is disabled.
func Run(ctx context.Context, cfg Config, projectDir, mainFile string) (*Result, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	engine := cfg.Engine
	if engine == "" {
		engine = "pdflatex"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, engine, "-interaction=nonstopmode", "-halt-on-error", filepath.FromSlash(mainFile))
	cmd.Dir = projectDir
	output, err := cmd.CombinedOutput()

	res := &Result{Errors: extractLogErrors(string(output))}
	if runCtx.Err() == context.DeadlineExceeded {
		return res, types.NewAppErrorWithDetails(types.ErrInternal, "compilation timed out", engine, runCtx.Err())
	}
	if err != nil {
		logger.Warn("compilation failed",
			logger.String("engine", engine),
			logger.Int("log_errors", len(res.Errors)),
			logger.Err(err))
		return res, nil
	}

	pdfPath := filepath.Join(projectDir, strings.TrimSuffix(filepath.FromSlash(mainFile), ".tex")+".pdf")
	pages, verr := VerifyPDF(pdfPath)
	if verr != nil {
		return res, verr
	}
	res.Succeeded = true
	res.PDFPath = pdfPath
	res.Pages = pages
	logger.Info("compilation check passed",
		logger.String("pdf", pdfPath),
		logger.Int("pages", pages))
	return res, nil
}

// VerifyPDF checks that the file is a structurally valid PDF and returns its
// page count. pdfcpu does the structural validation; the page count comes
// from the lighter reader.
func VerifyPDF(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, types.NewAppErrorWithDetails(types.ErrInternal, "produced PDF failed validation", path, err)
	}
	pages := pdfCtx.PageCount
	if pages > 0 {
		return pages, nil
	}

	f, reader, err := ledongthuc.Open(path)
	if err != nil {
		return 0, types.NewAppErrorWithDetails(types.ErrInternal, "failed to read produced PDF", path, err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// extractLogErrors pulls the error lines out of a TeX engine log. Engine
// errors start with "! " and the offending line number follows on an "l.N"
// line.
func extractLogErrors(log string) []string {
	var out []string
	lines := strings.Split(log, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "! ") {
			continue
		}
		msg := strings.TrimPrefix(line, "! ")
		for j := i + 1; j < len(lines) && j < i+6; j++ {
			if strings.HasPrefix(lines[j], "l.") {
				num := strings.Fields(lines[j])[0]
				msg = fmt.Sprintf("%s (%s)", msg, num)
				break
			}
		}
		out = append(out, msg)
	}
	return out
}
