package transcript

import (
	"strings"
	"testing"
)

func joinSegments(segs []Segment, kind SegmentKind) string {
	var parts []string
	for _, s := range segs {
		if s.Kind == kind {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

func TestDiffWords_Identical(t *testing.T) {
	segs := DiffWords("I want coffee", "I want coffee")
	if len(segs) != 1 {
		t.Fatalf("len(segs) = %d; want 1: %+v", len(segs), segs)
	}
	if segs[0].Kind != SegmentSame || segs[0].Text != "I want coffee" {
		t.Errorf("segs[0] = %+v", segs[0])
	}
}

func TestDiffWords_MorphologicalFix(t *testing.T) {
	segs := DiffWords("me wants coffee", "I want coffee")

	if got := joinSegments(segs, SegmentChanged); got != "I want" {
		t.Errorf("changed words = %q; want \"I want\"", got)
	}
	if got := joinSegments(segs, SegmentSame); got != "coffee" {
		t.Errorf("unchanged words = %q; want \"coffee\"", got)
	}
	if got := joinSegments(segs, SegmentDeleted); got != "" {
		t.Errorf("deleted words = %q; want none", got)
	}
}

func TestDiffWords_Insertion(t *testing.T) {
	segs := DiffWords("I going home", "I am going home")

	if got := joinSegments(segs, SegmentInserted); got != "am" {
		t.Errorf("inserted words = %q; want \"am\"", got)
	}
	if got := joinSegments(segs, SegmentSame); got != "I going home" {
		t.Errorf("unchanged words = %q; want \"I going home\"", got)
	}
}

func TestDiffWords_Deletion(t *testing.T) {
	segs := DiffWords("I am do going home", "I am going home")

	if got := joinSegments(segs, SegmentDeleted); got != "do" {
		t.Errorf("deleted words = %q; want \"do\"", got)
	}
	if got := joinSegments(segs, SegmentSame); got != "I am going home" {
		t.Errorf("unchanged words = %q; want \"I am going home\"", got)
	}
}

func TestDiffWords_CaseInsensitiveMatch(t *testing.T) {
	segs := DiffWords("i want Coffee", "I want coffee")
	if len(segs) != 1 || segs[0].Kind != SegmentSame {
		t.Errorf("case-only differences should be SegmentSame: %+v", segs)
	}
}

func TestDiffWords_Empty(t *testing.T) {
	if segs := DiffWords("", ""); segs != nil {
		t.Errorf("DiffWords(\"\", \"\") = %+v; want nil", segs)
	}

	segs := DiffWords("", "hello there")
	if len(segs) != 1 || segs[0].Kind != SegmentInserted || segs[0].Text != "hello there" {
		t.Errorf("all-inserted diff = %+v", segs)
	}

	segs = DiffWords("hello there", "")
	if len(segs) != 1 || segs[0].Kind != SegmentDeleted || segs[0].Text != "hello there" {
		t.Errorf("all-deleted diff = %+v", segs)
	}
}

func TestDiffWords_MergesAdjacentRuns(t *testing.T) {
	segs := DiffWords("she dont likes apples", "she does not like apples")

	for i := 1; i < len(segs); i++ {
		if segs[i].Kind == segs[i-1].Kind {
			t.Errorf("adjacent segments share kind %v: %+v", segs[i].Kind, segs)
		}
	}
	// The corrected rendering is reconstructed from everything except deletions.
	var rebuilt []string
	for _, s := range segs {
		if s.Kind != SegmentDeleted {
			rebuilt = append(rebuilt, s.Text)
		}
	}
	if got := strings.Join(rebuilt, " "); got != "she does not like apples" {
		t.Errorf("rebuilt corrected text = %q", got)
	}
}
