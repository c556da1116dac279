package parser

import (
	"strings"
	"unicode"

	"latex-project-translator/internal/types"
)

// Recompose rebuilds file text from an element sequence. For untouched input
// it reproduces the original byte-for-byte; after translation has replaced
// leaf Raw fields it yields the translated document. Parent elements keep
// their original Raw, so the text surrounding a child region is always taken
// from the parent's untouched bytes.
func Recompose(elements []*types.StructuralElement) string {
	var sb strings.Builder
	for _, el := range elements {
		writeElement(&sb, el)
	}
	return sb.String()
}

func writeElement(sb *strings.Builder, el *types.StructuralElement) {
	if el.IsLeaf() {
		sb.WriteString(el.Raw)
		return
	}
	// Raw is the original span; splice translated children into the region
	// they cover and keep the surrounding bytes as-is.
	prefix := el.Raw[:el.BodyStart-el.Span.Start]
	suffix := el.Raw[el.BodyEnd-el.Span.Start:]
	sb.WriteString(prefix)
	for _, child := range el.Children {
		writeElement(sb, child)
	}
	sb.WriteString(suffix)
}

// TranslatableLeaves walks the element tree in document order and returns the
// leaves whose text should be submitted for translation. Whitespace-only and
// letterless runs stay in the sequence for losslessness but are skipped here.
func TranslatableLeaves(elements []*types.StructuralElement) []*types.StructuralElement {
	var out []*types.StructuralElement
	var walk func(els []*types.StructuralElement)
	walk = func(els []*types.StructuralElement) {
		for _, el := range els {
			if !el.IsLeaf() {
				walk(el.Children)
				continue
			}
			if el.Translatable && containsLetter(el.Raw) {
				out = append(out, el)
			}
		}
	}
	walk(elements)
	return out
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// TraceWithin returns the subset of trace events whose position falls inside
// the half-open span. Events are emitted in document order, so the result
// preserves that order.
func TraceWithin(trace []types.BalanceEvent, span types.Span) []types.BalanceEvent {
	var out []types.BalanceEvent
	for _, ev := range trace {
		if ev.Pos >= span.Start && ev.Pos < span.End {
			out = append(out, ev)
		}
	}
	return out
}
