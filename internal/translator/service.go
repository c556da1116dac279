// Package translator submits text runs to a translation backend and wraps it
// with retry and caching layers. The backend is an OpenAI-compatible chat
// model driven through the eino component framework.
package translator

import (
	"context"

	"latex-project-translator/internal/types"
)

// Service translates one text run. Implementations must be safe for
// concurrent use; the orchestrator calls Translate from its worker pool.
type Service interface {
	Translate(ctx context.Context, text string, tctx *types.TranslationContext) (string, error)
}

// Func adapts a function to the Service interface, mainly for tests.
type Func func(ctx context.Context, text string, tctx *types.TranslationContext) (string, error)

// Translate implements Service.
func (f Func) Translate(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
	return f(ctx, text, tctx)
}
