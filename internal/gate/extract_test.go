package gate

import (
	"strings"
	"testing"
)

func TestExtract_IdenticalTextHasNoEdits(t *testing.T) {
	text := "int x = 1;\nint y = 2;\n"
	change := FileChange{Path: "a.c", AddedRanges: []LineRange{{1, 2}}}
	edits := Extract(change, FormatResult{Path: "a.c", OriginalText: text, FormattedText: text}, 0)
	if len(edits) != 0 {
		t.Errorf("got %d edits for already formatted text, want 0", len(edits))
	}
}

func TestExtract_DropsBlocksOutsideChangedRanges(t *testing.T) {
	orig := numbered(60, map[int]string{5: "int x=1;", 50: "int y=2;"})
	formatted, _ := spaceEquals("a.c", orig)
	change := FileChange{Path: "a.c", AddedRanges: []LineRange{{5, 5}}}

	edits := Extract(change, FormatResult{Path: "a.c", OriginalText: orig, FormattedText: formatted}, 0)
	if len(edits) != 1 {
		t.Fatalf("got %d edits, want 1: %+v", len(edits), edits)
	}
	e := edits[0]
	if e.Range != (LineRange{5, 5}) {
		t.Errorf("Range = %v, want 5", e.Range)
	}
	if e.OriginalLines[0] != "int x=1;\n" || e.ReplacementLines[0] != "int x = 1;\n" {
		t.Errorf("edit = %q -> %q", e.OriginalLines, e.ReplacementLines)
	}
}

func TestExtract_OrderAndDistinctEdits(t *testing.T) {
	orig := numbered(10, map[int]string{2: "a=1;", 4: "b=2;", 9: "c=3;"})
	formatted, _ := spaceEquals("f.c", orig)
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{1, 10}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
	if len(edits) != 3 {
		t.Fatalf("got %d edits, want 3", len(edits))
	}
	for i, want := range []int{2, 4, 9} {
		if edits[i].Range.Start != want {
			t.Errorf("edits[%d].Range = %v, want start %d", i, edits[i].Range, want)
		}
		if edits[i].Path != "f.c" {
			t.Errorf("edits[%d].Path = %q, want f.c", i, edits[i].Path)
		}
	}
}

func TestExtract_MergeThreshold(t *testing.T) {
	orig := numbered(10, map[int]string{2: "a=1;", 4: "b=2;", 9: "c=3;"})
	formatted, _ := spaceEquals("f.c", orig)
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{1, 10}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 2)
	if len(edits) != 2 {
		t.Fatalf("got %d edits, want 2: %+v", len(edits), edits)
	}
	if edits[0].Range != (LineRange{2, 4}) {
		t.Errorf("merged range = %v, want 2-4", edits[0].Range)
	}
	if len(edits[0].ReplacementLines) != 3 || edits[0].ReplacementLines[1] != "// line 3\n" {
		t.Errorf("merged replacement = %q", edits[0].ReplacementLines)
	}
	if edits[1].Range != (LineRange{9, 9}) {
		t.Errorf("second range = %v, want 9", edits[1].Range)
	}
}

func TestExtract_MergeSkipsDiscardedBlocks(t *testing.T) {
	// Line 4 is reformatted but was not changed; the edits on 2 and 6 must
	// not merge across it.
	orig := numbered(8, map[int]string{2: "a=1;", 4: "b=2;", 6: "c=3;"})
	formatted, _ := spaceEquals("f.c", orig)
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{2, 2}, {6, 6}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 5)
	if len(edits) != 2 {
		t.Fatalf("got %d edits, want 2: %+v", len(edits), edits)
	}
	if edits[0].Range != (LineRange{2, 2}) || edits[1].Range != (LineRange{6, 6}) {
		t.Errorf("ranges = %v, %v; want 2 and 6", edits[0].Range, edits[1].Range)
	}
}

func TestExtract_Deletion(t *testing.T) {
	orig := "a\n\n\n\nb\n"
	formatted := "a\n\nb\n"
	change := FileChange{Path: "f", AddedRanges: []LineRange{{3, 4}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
	if len(edits) != 1 {
		t.Fatalf("got %d edits, want 1: %+v", len(edits), edits)
	}
	if len(edits[0].ReplacementLines) != 0 {
		t.Errorf("deletion should have no replacement lines, got %q", edits[0].ReplacementLines)
	}
	if edits[0].Range.Len() != 2 {
		t.Errorf("deletion range = %v, want two lines", edits[0].Range)
	}
}

func TestExtract_InsertionAnchoredToChangedLine(t *testing.T) {
	orig := "#include <a.h>\nint f();\nint g();\n"
	formatted := "#include <a.h>\n\nint f();\nint g();\n"

	t.Run("following line changed", func(t *testing.T) {
		change := FileChange{Path: "f.c", AddedRanges: []LineRange{{2, 2}}}
		edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
		if len(edits) != 1 {
			t.Fatalf("got %d edits, want 1", len(edits))
		}
		e := edits[0]
		if e.Range != (LineRange{2, 2}) {
			t.Errorf("Range = %v, want 2", e.Range)
		}
		if strings.Join(e.ReplacementLines, "") != "\nint f();\n" {
			t.Errorf("replacement = %q", e.ReplacementLines)
		}
	})

	t.Run("preceding line changed", func(t *testing.T) {
		change := FileChange{Path: "f.c", AddedRanges: []LineRange{{1, 1}}}
		edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
		if len(edits) != 1 {
			t.Fatalf("got %d edits, want 1", len(edits))
		}
		e := edits[0]
		if e.Range != (LineRange{1, 1}) {
			t.Errorf("Range = %v, want 1", e.Range)
		}
		if strings.Join(e.ReplacementLines, "") != "#include <a.h>\n\n" {
			t.Errorf("replacement = %q", e.ReplacementLines)
		}
	})

	t.Run("neither neighbour changed", func(t *testing.T) {
		change := FileChange{Path: "f.c", AddedRanges: []LineRange{{3, 3}}}
		edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
		if len(edits) != 0 {
			t.Errorf("got %d edits, want 0", len(edits))
		}
	})
}

func TestExtract_EditsApplyToFormattedRegions(t *testing.T) {
	orig := numbered(8, map[int]string{1: "x=1;", 8: "y=2;"})
	formatted, _ := spaceEquals("f.c", orig)
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{1, 8}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
	got, err := ApplyText(orig, edits)
	if err != nil {
		t.Fatalf("ApplyText error: %v", err)
	}
	if got != formatted {
		t.Errorf("applying all in-scope edits of a fully changed file should yield the formatted text\ngot:  %q\nwant: %q", got, formatted)
	}
}

func TestExtract_RewrittenRunKeepsUnchangedNeighbours(t *testing.T) {
	orig := "int a=1;\nint b=2;\nint c=3;\nint d=4;\n"
	formatted := "int a = 1;\nint b = 2;\nint c = 3;\nint d = 4;\n"
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{2, 2}, {4, 4}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
	if len(edits) != 2 {
		t.Fatalf("got %d edits, want 2: %+v", len(edits), edits)
	}
	if edits[0].Range != (LineRange{2, 2}) || edits[1].Range != (LineRange{4, 4}) {
		t.Errorf("ranges = %v, %v; want 2 and 4", edits[0].Range, edits[1].Range)
	}

	got, err := ApplyText(orig, edits)
	if err != nil {
		t.Fatalf("ApplyText error: %v", err)
	}
	if want := "int a=1;\nint b = 2;\nint c=3;\nint d = 4;\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Pieces of one block never merge across the unchanged line between them.
	if merged := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 5); len(merged) != 2 {
		t.Errorf("merge threshold joined pieces of one block: %+v", merged)
	}
}

func TestExtract_UnevenBlockKeptWhole(t *testing.T) {
	orig := "f(a,\n  b);\nint x;\n"
	formatted := "f(a, b);\nint x;\n"
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{2, 2}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
	if len(edits) != 1 || edits[0].Range != (LineRange{1, 2}) {
		t.Fatalf("edits = %+v, want one edit over lines 1-2", edits)
	}
}

func TestExtract_InsertionsAroundOneLineShareAnEdit(t *testing.T) {
	orig := "a\nx\nb\n"
	formatted := "a\ni1\nx\ni2\nb\n"
	change := FileChange{Path: "f.c", AddedRanges: []LineRange{{2, 2}}}

	edits := Extract(change, FormatResult{OriginalText: orig, FormattedText: formatted}, 0)
	if len(edits) != 1 {
		t.Fatalf("got %d edits, want 1: %+v", len(edits), edits)
	}
	e := edits[0]
	if e.Range != (LineRange{2, 2}) {
		t.Errorf("Range = %v, want 2", e.Range)
	}
	if strings.Join(e.ReplacementLines, "") != "i1\nx\ni2\n" {
		t.Errorf("replacement = %q", e.ReplacementLines)
	}

	got, err := ApplyText(orig, edits)
	if err != nil {
		t.Fatalf("ApplyText error: %v", err)
	}
	if got != formatted {
		t.Errorf("got %q, want %q", got, formatted)
	}
}
