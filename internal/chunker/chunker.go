package chunker

import (
	"regexp"
	"strings"
)

// Options bound the size of emitted segments, in estimated tokens.
type Options struct {
	// SingleChunkThreshold: text estimated below this is returned whole.
	SingleChunkThreshold int
	// TargetSize is the token count each segment aims for.
	TargetSize int
	// OverlapSize is the token count shared between consecutive segments.
	OverlapSize int
	// MinSize: a trailing remainder below this is merged into the previous
	// segment instead of being emitted standalone.
	MinSize int
	// MaxSize is the hard cap on any single segment.
	MaxSize int
}

func (o Options) normalized() Options {
	if o.SingleChunkThreshold <= 0 {
		o.SingleChunkThreshold = 1000
	}
	if o.TargetSize <= 0 {
		o.TargetSize = 750
	}
	if o.OverlapSize < 0 {
		o.OverlapSize = 0
	}
	if o.OverlapSize >= o.TargetSize {
		o.OverlapSize = o.TargetSize / 4
	}
	if o.MinSize <= 0 || o.MinSize > o.TargetSize {
		o.MinSize = o.TargetSize / 2
	}
	if o.MaxSize < o.TargetSize+o.OverlapSize {
		o.MaxSize = 2 * o.TargetSize
	}
	return o
}

// Segment is one bounded piece of the source text, ready for embedding.
type Segment struct {
	Index      int
	Text       string
	TokenCount int
}

// Chunker splits raw text into bounded, overlapping segments. Cuts prefer
// paragraph boundaries, then sentence boundaries, then a hard word cut.
// Identical input and options always produce identical boundaries.
type Chunker struct {
	opts     Options
	sentence *regexp.Regexp
	paraSep  *regexp.Regexp
}

func New(opts Options) *Chunker {
	return &Chunker{
		opts:     opts.normalized(),
		sentence: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`),
		paraSep:  regexp.MustCompile(`\n\s*\n`),
	}
}

// EstimateTokens is the shared token heuristic (~4 chars per token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Chunk splits text into ordered segments. Empty or whitespace-only text
// yields zero segments; callers treat that as "skip, not error". Nonzero
// text below SingleChunkThreshold yields exactly one segment.
func (c *Chunker) Chunk(text string) []Segment {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if EstimateTokens(trimmed) < c.opts.SingleChunkThreshold {
		return []Segment{{Index: 0, Text: trimmed, TokenCount: EstimateTokens(trimmed)}}
	}

	pieces := c.split(trimmed)
	return c.pack(pieces)
}

// piece is an atomic unit of text: a sentence, or a word run cut from an
// oversized sentence. Pieces are never split further during packing.
type piece struct {
	text     string
	tokens   int
	endsPara bool
}

func (c *Chunker) split(text string) []piece {
	var pieces []piece

	for _, para := range c.paraSep.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		start := len(pieces)
		for _, sent := range c.sentences(para) {
			if EstimateTokens(sent) > c.opts.TargetSize {
				pieces = append(pieces, c.hardCut(sent)...)
				continue
			}
			pieces = append(pieces, piece{text: sent, tokens: EstimateTokens(sent)})
		}
		if len(pieces) > start {
			pieces[len(pieces)-1].endsPara = true
		}
	}

	return pieces
}

func (c *Chunker) sentences(para string) []string {
	matches := c.sentence.FindAllStringIndex(para, -1)
	if len(matches) == 0 {
		return []string{para}
	}

	var out []string
	end := 0
	for _, m := range matches {
		s := strings.TrimSpace(para[m[0]:m[1]])
		if s != "" {
			out = append(out, s)
		}
		end = m[1]
	}
	// Trailing text without terminal punctuation is still a sentence.
	if rest := strings.TrimSpace(para[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// hardCut splits a sentence longer than the target window on word
// boundaries into pieces of at most TargetSize tokens.
func (c *Chunker) hardCut(sent string) []piece {
	var pieces []piece
	var b strings.Builder
	for _, word := range strings.Fields(sent) {
		if b.Len() > 0 && EstimateTokens(b.String())+EstimateTokens(word) > c.opts.TargetSize {
			pieces = append(pieces, piece{text: b.String(), tokens: EstimateTokens(b.String())})
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		pieces = append(pieces, piece{text: b.String(), tokens: EstimateTokens(b.String())})
	}
	return pieces
}

func (c *Chunker) pack(pieces []piece) []Segment {
	var segs []Segment
	i := 0

	for i < len(pieces) {
		rest := sumTokens(pieces[i:])

		if rest <= c.opts.TargetSize {
			// Final window: merge into the previous segment when it is
			// below MinSize and the merge stays under the hard cap.
			if rest < c.opts.MinSize && len(segs) > 0 {
				last := &segs[len(segs)-1]
				if last.TokenCount+rest <= c.opts.MaxSize {
					last.Text = last.Text + " " + joinPieces(pieces[i:])
					last.TokenCount += rest
					return segs
				}
			}
			segs = append(segs, c.emit(pieces, i, len(pieces)-1, len(segs)))
			return segs
		}

		cut := c.findCut(pieces, i)
		segs = append(segs, c.emit(pieces, i, cut, len(segs)))
		i = cut + 1
	}

	return segs
}

// findCut picks the last piece of the window starting at i: the last
// paragraph boundary within the target window if one lands past MinSize,
// otherwise the last sentence that fits. A window still below MinSize
// keeps absorbing pieces past the target (up to MaxSize), so a short
// sentence ahead of a near-target one never ships as an undersized
// segment. At least one piece is always consumed so packing makes
// progress.
func (c *Chunker) findCut(pieces []piece, i int) int {
	cum := 0
	last := i
	lastPara := -1

	for j := i; j < len(pieces); j++ {
		if j > i && cum+pieces[j].tokens > c.opts.TargetSize {
			if cum >= c.opts.MinSize || cum+pieces[j].tokens > c.opts.MaxSize {
				break
			}
		}
		cum += pieces[j].tokens
		last = j
		if pieces[j].endsPara && cum >= c.opts.MinSize {
			lastPara = j
		}
	}

	if lastPara >= i {
		return lastPara
	}
	return last
}

// emit builds the segment for window [i..cut], prepending enough earlier
// pieces to carry OverlapSize tokens of shared context, trimmed back if
// that would breach MaxSize.
func (c *Chunker) emit(pieces []piece, i, cut, index int) Segment {
	start := i
	if index > 0 && c.opts.OverlapSize > 0 {
		ov := 0
		for start > 0 && ov < c.opts.OverlapSize {
			start--
			ov += pieces[start].tokens
		}
	}

	tokens := sumTokens(pieces[start : cut+1])
	for start < i && tokens > c.opts.MaxSize {
		tokens -= pieces[start].tokens
		start++
	}

	return Segment{
		Index:      index,
		Text:       joinPieces(pieces[start : cut+1]),
		TokenCount: tokens,
	}
}

func sumTokens(pieces []piece) int {
	n := 0
	for _, p := range pieces {
		n += p.tokens
	}
	return n
}

func joinPieces(pieces []piece) string {
	var b strings.Builder
	for k, p := range pieces {
		if k > 0 {
			if pieces[k-1].endsPara {
				b.WriteString("\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(p.text)
	}
	return b.String()
}
