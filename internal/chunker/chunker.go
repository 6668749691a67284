// Package chunker splits normalized documents into bounded, overlapping
// passages sized for embedding and citation.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/corpusd/internal/corpus"
)

// ErrInvalidConfig indicates invalid chunking parameters.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Defaults match the corpus this pipeline was tuned on.
const (
	DefaultMaxSize = 500
	DefaultOverlap = 50
)

// Chunk is a bounded passage of a document. Chunks are immutable after
// creation; Start and End are rune offsets into the document text.
type Chunk struct {
	ID         string
	DocumentID string
	Title      string
	Seq        int
	Text       string
	Start      int
	End        int
}

// Chunker splits documents deterministically: identical input and
// parameters always produce the identical chunk sequence.
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a Chunker. Requires 0 <= overlap < maxSize.
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < max size, got overlap=%d max=%d", ErrInvalidConfig, overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Chunk splits a document into passages of at most maxSize runes with
// overlap runes shared between consecutive chunks. Window boundaries
// prefer a newline near the end of the window so passages do not sever
// mid-line context.
func (c *Chunker) Chunk(doc corpus.Document) []Chunk {
	runes := []rune(doc.Text)
	if len(strings.TrimSpace(doc.Text)) == 0 {
		return nil
	}

	var chunks []Chunk
	pos := 0
	for seq := 0; pos < len(runes); seq++ {
		end := pos + c.maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.adjustBoundary(runes, pos, end)
		}

		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s:%d", doc.ID, seq),
			DocumentID: doc.ID,
			Title:      doc.Title,
			Seq:        seq,
			Text:       string(runes[pos:end]),
			Start:      pos,
			End:        end,
		})

		if end == len(runes) {
			break
		}
		pos = end - c.overlap
	}
	return chunks
}

// ParseDocumentID extracts the document ID from a chunk ID of the form
// "<document_id>:<seq>".
func ParseDocumentID(chunkID string) (string, bool) {
	i := strings.LastIndexByte(chunkID, ':')
	if i <= 0 {
		return "", false
	}
	return chunkID[:i], true
}

// adjustBoundary moves a window end back to the newline closest to it,
// but never so far that the window stops making progress past the
// overlap region.
func (c *Chunker) adjustBoundary(runes []rune, pos, end int) int {
	lowest := pos + c.overlap + 1
	if floor := pos + c.maxSize/2; floor > lowest {
		lowest = floor
	}
	for i := end; i > lowest; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return end
}
