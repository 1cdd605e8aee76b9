// Package chunker splits normalized text into fixed-size overlapping windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// ErrInvalidConfig is returned for a size/overlap pair that cannot advance.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Chunk is one window of the normalized text. Offset and the length of Text are in runes.
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// Chunker holds a validated size/overlap pair.
type Chunker struct {
	size    int
	overlap int
}

// New validates size and overlap. Overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be >= 0, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Default returns a chunker with DefaultSize and DefaultOverlap.
func Default() *Chunker {
	return &Chunker{size: DefaultSize, overlap: DefaultOverlap}
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split normalizes text and slides a window of size runes forward by
// size-overlap, stopping after the window that reaches the end.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Offset: start, Text: part})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Normalize collapses whitespace runs into single spaces and trims the result.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Texts returns the chunk contents in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
