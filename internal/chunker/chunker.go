// Package chunker splits extracted document text into overlapping,
// boundary-aware chunks sized for a single embedding call.
package chunker

import (
	"strings"
	"unicode"

	"iep-rag-go/internal/model"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of characters carried into the next chunk.
const DefaultChunkOverlap = 100

// minBoundaryRatio is how far into a window a break must sit before the window is shrunk to it.
const minBoundaryRatio = 0.4

type options struct {
	chunkSize int
	overlap   int
}

// Option configures ChunkText.
type Option func(*options)

// WithChunkSize sets the target maximum characters per chunk. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(o *options) {
		if overlap >= 0 {
			o.overlap = overlap
		}
	}
}

// ChunkText splits text into chunks in left-to-right order.
//
// The text is trimmed once and all offsets are relative to the trimmed text,
// counted in runes. A window that stops before the end of the text is shrunk to
// the last paragraph break, line break or space inside it, provided that break
// lies at least 40% into the window. Whitespace-only windows are dropped, so
// every returned chunk has non-empty content and chunks[i].Index == i.
func ChunkText(text string, opts ...Option) []model.Chunk {
	o := options{chunkSize: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(&o)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	n := len(runes)
	minBoundary := int(float64(o.chunkSize) * minBoundaryRatio)

	chunks := make([]model.Chunk, 0, n/o.chunkSize+1)
	start := 0
	for start < n {
		end := start + o.chunkSize
		if end > n {
			end = n
		}

		if end < n {
			if bp := lastBoundary(runes[start:end]); bp >= minBoundary {
				end = start + bp + 1
			}
		}

		window := runes[start:end]
		lead, trail := whitespaceBounds(window)
		if lead < trail {
			chunks = append(chunks, model.Chunk{
				Content: string(window[lead:trail]),
				Index:   len(chunks),
				Start:   start + lead,
				End:     start + trail,
			})
		}

		if end >= n {
			break
		}
		next := end - o.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// lastBoundary returns the rune index of the right-most "\n\n", "\n" or " " in s, or -1.
func lastBoundary(s []rune) int {
	best := lastIndex(s, []rune("\n\n"))
	if i := lastIndex(s, []rune("\n")); i > best {
		best = i
	}
	if i := lastIndex(s, []rune(" ")); i > best {
		best = i
	}
	return best
}

func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// whitespaceBounds returns [lead, trail) such that window[lead:trail] is the trimmed window.
func whitespaceBounds(window []rune) (int, int) {
	lead, trail := 0, len(window)
	for lead < trail && unicode.IsSpace(window[lead]) {
		lead++
	}
	for trail > lead && unicode.IsSpace(window[trail-1]) {
		trail--
	}
	return lead, trail
}
