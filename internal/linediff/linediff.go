package linediff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Block is a run of lines that differs between two texts. Bounds are
// 0-indexed and half-open: A[OldStart:OldEnd] was replaced by
// B[NewStart:NewEnd]. Either side may be empty.
type Block struct {
	OldStart, OldEnd int
	NewStart, NewEnd int
}

// Inserted reports whether the block only adds lines.
func (b Block) Inserted() bool { return b.OldStart == b.OldEnd }

// Deleted reports whether the block only removes lines.
func (b Block) Deleted() bool { return b.NewStart == b.NewEnd }

// Split breaks text into lines, each keeping its trailing newline. A final
// line without a newline is kept as is; an empty text has no lines.
func Split(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Blocks returns the differing blocks between a and b in ascending order.
// Automatic junk detection is disabled so that frequent lines such as
// braces and blank lines still anchor the match.
func Blocks(a, b []string) []Block {
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	var blocks []Block
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		blocks = append(blocks, Block{
			OldStart: op.I1,
			OldEnd:   op.I2,
			NewStart: op.J1,
			NewEnd:   op.J2,
		})
	}
	return blocks
}

// Similarity returns a ratio in [0, 100] describing how alike a and b are.
func Similarity(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	return int(m.Ratio() * 100)
}

// Unified renders a unified diff between a and b with the given context.
func Unified(a, b []string, fromFile, toFile string, context int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  context,
	})
}
