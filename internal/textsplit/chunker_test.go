package textsplit

import (
	"strings"
	"testing"
)

func TestSimpleChunkerEmptyInput(t *testing.T) {
	c := NewSimpleChunker(900, 120)
	if got := c.Split(""); len(got) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(got))
	}
	if got := c.Split("   \n\t  "); len(got) != 0 {
		t.Errorf("expected no chunks for whitespace input, got %d", len(got))
	}
}

func TestSimpleChunkerSmallInputSingleChunk(t *testing.T) {
	c := NewSimpleChunker(900, 120)
	input := "  A short document that fits in one chunk.  "
	got := c.Split(input)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != strings.TrimSpace(input) {
		t.Errorf("chunk = %q, want trimmed input", got[0])
	}
}

func TestSimpleChunkerPrefersParagraphBreaks(t *testing.T) {
	para1 := strings.Repeat("alpha ", 20) // ~120 chars
	para2 := strings.Repeat("beta ", 20)
	text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	c := NewSimpleChunker(150, 20)
	got := c.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	// The first chunk should end at the paragraph boundary, not mid-word.
	if strings.Contains(got[0], "beta") {
		t.Errorf("first chunk crossed the paragraph break: %q", got[0])
	}
}

func TestSimpleChunkerOverlap(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ")

	c := NewSimpleChunker(200, 50)
	got := c.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if len(chunk) > 200+50 {
			t.Errorf("chunk %d exceeds size bound: %d chars", i, len(chunk))
		}
	}
}

func TestSimpleChunkerAlwaysMakesProgress(t *testing.T) {
	// No separators at all: a single unbroken run must still terminate.
	text := strings.Repeat("x", 5000)
	c := NewSimpleChunker(100, 99)
	got := c.Split(text)
	if len(got) == 0 {
		t.Fatal("expected chunks for unbroken input")
	}
	if len(got) > MaxChunksPerDocument {
		t.Errorf("chunk count %d exceeds cap", len(got))
	}
}

func TestSimpleChunkerMergesSmallTail(t *testing.T) {
	// Construct text slightly longer than one chunk so the remainder is tiny.
	text := strings.Repeat("sentence one. ", 70) // ~980 chars
	c := NewSimpleChunker(900, 0)
	got := c.Split(text)
	for i, chunk := range got {
		if i == len(got)-1 && len(got) > 1 {
			if len(chunk) < 900/4 {
				t.Errorf("trailing chunk of %d chars should have been merged", len(chunk))
			}
		}
	}
}

func TestStructuredChunkerKeepsCodeFences(t *testing.T) {
	fence := "```go\n" + strings.Repeat("fmt.Println(\"line\")\n", 30) + "```"
	text := "# Setup\n\nInstall the tool first.\n\n" + fence + "\n\nThen run it."

	c := NewStructuredChunker(200, 0)
	got := c.Split(text)

	found := false
	for _, chunk := range got {
		if strings.Contains(chunk, "```go") {
			if !strings.Contains(chunk, "```\n") && !strings.HasSuffix(chunk, "```") {
				t.Errorf("code fence was split across chunks: %q", chunk)
			}
			found = true
		}
	}
	if !found {
		t.Error("code fence missing from output")
	}
}

func TestStructuredChunkerMergesHeaderWithParagraph(t *testing.T) {
	text := "# Expenses\n\nExpenses over $50 need approval.\n\n" +
		"# Travel\n\nTravel expenses are reimbursed weekly.\n\n" +
		strings.Repeat("Filler paragraph to push the document over one chunk. ", 30)

	c := NewStructuredChunker(120, 0)
	got := c.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for _, chunk := range got {
		if strings.Contains(chunk, "# Expenses") && !strings.Contains(chunk, "approval") {
			t.Errorf("header separated from its paragraph: %q", chunk)
		}
	}
}

func TestStructuredChunkerOverlapPrependsTail(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Paragraph body with a reasonable amount of text in it.\n\n")
	}
	c := NewStructuredChunker(300, 60)
	got := c.Split(sb.String())
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	// Each later chunk starts with text drawn from the previous one.
	for i := 1; i < len(got); i++ {
		head := got[i]
		if idx := strings.Index(head, "\n"); idx > 0 {
			head = head[:idx]
		}
		if !strings.Contains(got[i-1], strings.TrimSpace(head)) {
			t.Errorf("chunk %d does not begin with overlap from chunk %d", i, i-1)
		}
	}
}

func TestNewSelectsMode(t *testing.T) {
	if _, ok := New("structured", 900, 120).(*StructuredChunker); !ok {
		t.Error("expected structured chunker")
	}
	if _, ok := New("simple", 900, 120).(*SimpleChunker); !ok {
		t.Error("expected simple chunker")
	}
	if _, ok := New("", 900, 120).(*SimpleChunker); !ok {
		t.Error("expected simple chunker for empty mode")
	}
}
