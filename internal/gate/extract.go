package gate

import (
	"github.com/dshills/diffgate/internal/linediff"
)

// Extract returns the formatter corrections in result that touch the changed
// lines of change. Blocks of the formatter's diff that lie entirely outside
// change.AddedRanges are discarded. A block that rewrites lines one for one
// is cut down to the changed lines it covers, so unchanged neighbours keep
// their original text.
//
// Kept blocks that were adjacent in the formatter's diff and are separated
// by fewer than mergeThreshold unchanged lines are merged into one edit.
func Extract(change FileChange, result FormatResult, mergeThreshold int) []ScopedEdit {
	if result.OriginalText == result.FormattedText || len(change.AddedRanges) == 0 {
		return nil
	}
	orig := linediff.Split(result.OriginalText)
	formatted := linediff.Split(result.FormattedText)

	var selected []piece
	for i, b := range linediff.Blocks(orig, formatted) {
		switch {
		case b.Inserted():
			anchored, ok := anchorInsertion(b, orig, change.AddedRanges)
			if ok {
				selected = append(selected, piece{anchored, i, true, true})
			}
		case b.OldEnd-b.OldStart == b.NewEnd-b.NewStart:
			selected = append(selected, splitBlock(b, i, orig, formatted, change.AddedRanges)...)
		case IntersectsAny(LineRange{Start: b.OldStart + 1, End: b.OldEnd}, change.AddedRanges):
			selected = append(selected, piece{b, i, true, true})
		}
	}
	if len(selected) == 0 {
		return nil
	}

	merged := []piece{selected[0]}
	for _, k := range selected[1:] {
		last := &merged[len(merged)-1]
		// Insertions on both sides of one changed line share that line as
		// their anchor; they become a single edit.
		if k.block.OldStart < last.block.OldEnd {
			last.block.OldEnd = max(last.block.OldEnd, k.block.OldEnd)
			last.block.NewEnd = max(last.block.NewEnd, k.block.NewEnd)
			last.index = k.index
			last.tail = k.tail
			continue
		}
		gap := k.block.OldStart - last.block.OldEnd
		adjacent := k.index == last.index+1 && last.tail && k.head
		if mergeThreshold > 0 && adjacent && gap < mergeThreshold {
			last.block.OldEnd = k.block.OldEnd
			last.block.NewEnd = k.block.NewEnd
			last.index = k.index
			last.tail = k.tail
			continue
		}
		merged = append(merged, k)
	}

	edits := make([]ScopedEdit, 0, len(merged))
	for _, k := range merged {
		b := k.block
		edits = append(edits, ScopedEdit{
			Path:             change.Path,
			Range:            LineRange{Start: b.OldStart + 1, End: b.OldEnd},
			OriginalLines:    append([]string(nil), orig[b.OldStart:b.OldEnd]...),
			ReplacementLines: append([]string{}, formatted[b.NewStart:b.NewEnd]...),
		})
	}
	return edits
}

// piece is a kept block, or part of one, tagged with the index of the block
// it came from. head and tail report whether it reaches that block's first
// and last line.
type piece struct {
	block      linediff.Block
	index      int
	head, tail bool
}

// splitBlock cuts a one-for-one replacement into runs of lines that were
// changed and differ after formatting.
func splitBlock(b linediff.Block, index int, orig, formatted []string, added []LineRange) []piece {
	size := b.OldEnd - b.OldStart
	var pieces []piece
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		pieces = append(pieces, piece{
			block: linediff.Block{
				OldStart: b.OldStart + start, OldEnd: b.OldStart + end,
				NewStart: b.NewStart + start, NewEnd: b.NewStart + end,
			},
			index: index,
			head:  start == 0,
			tail:  end == size,
		})
		start = -1
	}
	for n := 0; n < size; n++ {
		line := b.OldStart + n
		in := orig[line] != formatted[b.NewStart+n] &&
			IntersectsAny(LineRange{Start: line + 1, End: line + 1}, added)
		if in && start < 0 {
			start = n
		}
		if !in {
			flush(n)
		}
	}
	flush(size)
	return pieces
}

// anchorInsertion turns a pure insertion into a one-line replacement so the
// resulting edit covers a non-empty range of the original. The inserted
// lines are attached to the line after the insertion point when that line
// was changed, otherwise to the line before it. The insertion is dropped
// when neither neighbour was changed.
func anchorInsertion(b linediff.Block, orig []string, added []LineRange) (linediff.Block, bool) {
	k := b.OldStart
	// 1-based numbers of the neighbouring lines are k and k+1.
	if k < len(orig) && IntersectsAny(LineRange{Start: k + 1, End: k + 1}, added) {
		return linediff.Block{OldStart: k, OldEnd: k + 1, NewStart: b.NewStart, NewEnd: b.NewEnd + 1}, true
	}
	if k > 0 && IntersectsAny(LineRange{Start: k, End: k}, added) {
		return linediff.Block{OldStart: k - 1, OldEnd: k, NewStart: b.NewStart - 1, NewEnd: b.NewEnd}, true
	}
	return linediff.Block{}, false
}
