package chunker

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func testOptions() Options {
	return Options{
		SingleChunkThreshold: 1000,
		TargetSize:           750,
		OverlapSize:          100,
		MinSize:              300,
		MaxSize:              1500,
	}
}

// longText builds a single-paragraph text of numbered sentences, each
// roughly 14 estimated tokens, so sentence counts translate to sizes.
func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Sentence number %03d is here to pad things out nicely.", i)
	}
	return b.String()
}

func TestChunk_BlankTextYieldsNothing(t *testing.T) {
	c := New(testOptions())

	for _, text := range []string{"", "   ", "\n\n\t  \n"} {
		if got := c.Chunk(text); len(got) != 0 {
			t.Fatalf("expected 0 chunks for %q, got %d", text, len(got))
		}
	}
}

func TestChunk_ShortTextYieldsSingleChunk(t *testing.T) {
	c := New(testOptions())

	text := "I was flying over a vast dark ocean, then found an old door."
	got := c.Chunk(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Text != text {
		t.Fatalf("expected chunk to equal input, got %q", got[0].Text)
	}
	if got[0].Index != 0 {
		t.Fatalf("expected index 0, got %d", got[0].Index)
	}
}

func TestChunk_TinyTextStillYieldsOneChunk(t *testing.T) {
	// Shorter than MinSize but nonzero: the short-text exception applies.
	c := New(testOptions())

	got := c.Chunk("ok.")
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
}

func TestChunk_LongTextRespectsBounds(t *testing.T) {
	opts := testOptions()
	c := New(opts)

	got := c.Chunk(longText(240))
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}

	for i, seg := range got {
		if seg.Index != i {
			t.Fatalf("expected contiguous indexes, chunk %d has index %d", i, seg.Index)
		}
		if seg.TokenCount > opts.MaxSize {
			t.Fatalf("chunk %d has %d tokens, max is %d", i, seg.TokenCount, opts.MaxSize)
		}
		if seg.TokenCount < opts.MinSize {
			t.Fatalf("chunk %d has %d tokens, min is %d", i, seg.TokenCount, opts.MinSize)
		}
	}
}

func TestChunk_ConsecutiveChunksOverlap(t *testing.T) {
	c := New(testOptions())

	got := c.Chunk(longText(240))
	for i := 0; i+1 < len(got); i++ {
		next := got[i+1].Text
		probe := next
		if len(probe) > 40 {
			probe = probe[:40]
		}
		if !strings.Contains(got[i].Text, probe) {
			t.Fatalf("chunk %d does not share overlap with chunk %d:\nprobe=%q", i, i+1, probe)
		}
	}
}

func TestChunk_EverySentenceSurvives(t *testing.T) {
	c := New(testOptions())

	text := longText(240)
	got := c.Chunk(text)

	var all strings.Builder
	for _, seg := range got {
		all.WriteString(seg.Text)
		all.WriteByte(' ')
	}
	joined := all.String()

	for i := 0; i < 240; i++ {
		probe := fmt.Sprintf("Sentence number %03d", i)
		if !strings.Contains(joined, probe) {
			t.Fatalf("sentence %d missing from chunk output", i)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(testOptions())

	text := longText(240)
	first := c.Chunk(text)
	second := c.Chunk(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("chunking is not deterministic")
	}
}

func TestChunk_PrefersParagraphBoundary(t *testing.T) {
	opts := testOptions()
	c := New(opts)

	// Two paragraphs, the first ending ~mid-window past MinSize: the cut
	// should land on the paragraph break, not run to the target.
	para1 := longText(30)  // ~420 tokens
	para2 := longText(200) // enough to force multiple chunks
	got := c.Chunk(para1 + "\n\n" + para2)

	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	if !strings.HasSuffix(got[0].Text, "nicely.") {
		t.Fatalf("chunk 0 should end on a sentence, got suffix %q", got[0].Text[len(got[0].Text)-20:])
	}
	if got[0].TokenCount > 500 {
		t.Fatalf("expected cut at the ~420-token paragraph boundary, got %d tokens", got[0].TokenCount)
	}
}

func TestChunk_HardCutsUnbrokenText(t *testing.T) {
	opts := testOptions()
	c := New(opts)

	// No sentence or paragraph boundaries at all: word-level hard cuts
	// must still keep every chunk under the cap.
	got := c.Chunk(strings.Repeat("wordwordword ", 1600))
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, seg := range got {
		if seg.TokenCount > opts.MaxSize {
			t.Fatalf("chunk %d has %d tokens, max is %d", i, seg.TokenCount, opts.MaxSize)
		}
	}
}

// sentenceOfTokens builds one sentence of roughly n estimated tokens.
func sentenceOfTokens(n int) string {
	words := (n*4 - 4) / 5
	return strings.Repeat("pads ", words) + "end."
}

func TestChunk_ShortSentenceBeforeBigOneStaysAboveMin(t *testing.T) {
	opts := testOptions()
	c := New(opts)

	// A ~100-token sentence followed by a ~700-token one: the window must
	// absorb the big sentence instead of shipping the small one alone.
	text := sentenceOfTokens(100) + " " + sentenceOfTokens(700) + " " + longText(200)
	got := c.Chunk(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}

	for i, seg := range got {
		if i < len(got)-1 && seg.TokenCount < opts.MinSize {
			t.Fatalf("non-final chunk %d has %d tokens, below MinSize %d", i, seg.TokenCount, opts.MinSize)
		}
		if seg.TokenCount > opts.MaxSize {
			t.Fatalf("chunk %d has %d tokens, max is %d", i, seg.TokenCount, opts.MaxSize)
		}
	}
}

func TestChunk_TrailingRemainderMerged(t *testing.T) {
	opts := testOptions()
	c := New(opts)

	// 60 sentences past the last full window leave a remainder well under
	// MinSize; it must fold into the previous chunk, not stand alone.
	got := c.Chunk(longText(220))
	last := got[len(got)-1]
	if last.TokenCount < opts.MinSize {
		t.Fatalf("trailing chunk has %d tokens, below min %d — remainder was not merged", last.TokenCount, opts.MinSize)
	}
}
