// Package diff computes line-level differences between two content
// snapshots. The engine is pure: no caches, no shared mutable state, and the
// same inputs always yield the same result, so it can be property-tested in
// isolation and safely run in parallel across independent revision pairs.
package diff

// Kind classifies a single line of a diff result.
type Kind string

const (
	// KindAdded marks a line present only in the new content.
	KindAdded Kind = "added"
	// KindRemoved marks a line present only in the old content.
	KindRemoved Kind = "removed"
	// KindChanged marks an old/new line pair treated as a single edit.
	KindChanged Kind = "changed"
	// KindUnchanged marks a line common to both sides.
	KindUnchanged Kind = "unchanged"
)

// Line is one entry in the ordered diff output. Number is the position in
// the new content for added, changed, and unchanged lines, and the position
// in the old content for removals. OldContent and NewContent are populated
// only for changed lines.
type Line struct {
	Number     int    `json:"line_number"`
	Kind       Kind   `json:"kind"`
	Content    string `json:"content"`
	OldContent string `json:"old_content,omitempty"`
	NewContent string `json:"new_content,omitempty"`
}

// Summary tallies each line kind across a diff result.
type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// Result is the computed difference between two content snapshots. It is
// derived on demand and never persisted.
type Result struct {
	Summary Summary `json:"summary"`
	Lines   []Line  `json:"changes"`
}

// Compare computes the line diff between oldLines and newLines.
//
// Common lines are anchored via the longest common subsequence under exact
// content equality. Within each gap between anchors, an equal count of
// old-only and new-only lines is paired index-for-index into changed lines;
// this turns naive remove+add pairs into single semantic edits, which keeps
// tolerance and program edits readable. Unequal gaps fall back to plain
// removals followed by additions.
func Compare(oldLines, newLines []string) Result {
	anchors := commonSubsequence(oldLines, newLines)

	var lines []Line
	oi, ni := 0, 0

	emitGap := func(oldEnd, newEnd int) {
		oldGap := oldLines[oi:oldEnd]
		newGap := newLines[ni:newEnd]

		switch {
		case len(oldGap) == 0 && len(newGap) == 0:
			// nothing between anchors
		case len(oldGap) == len(newGap):
			for k := range oldGap {
				lines = append(lines, Line{
					Number:     ni + k + 1,
					Kind:       KindChanged,
					Content:    newGap[k],
					OldContent: oldGap[k],
					NewContent: newGap[k],
				})
			}
		default:
			for k, content := range oldGap {
				lines = append(lines, Line{
					Number:  oi + k + 1,
					Kind:    KindRemoved,
					Content: content,
				})
			}
			for k, content := range newGap {
				lines = append(lines, Line{
					Number:  ni + k + 1,
					Kind:    KindAdded,
					Content: content,
				})
			}
		}

		oi, ni = oldEnd, newEnd
	}

	for _, a := range anchors {
		emitGap(a.oldIndex, a.newIndex)
		lines = append(lines, Line{
			Number:  a.newIndex + 1,
			Kind:    KindUnchanged,
			Content: newLines[a.newIndex],
		})
		oi, ni = a.oldIndex+1, a.newIndex+1
	}
	emitGap(len(oldLines), len(newLines))

	return Result{Summary: tally(lines), Lines: lines}
}

// anchor records one matched line position on each side.
type anchor struct {
	oldIndex int
	newIndex int
}

// commonSubsequence returns the LCS of the two line slices as index pairs in
// document order. Standard O(N*M) dynamic programming; callers bound input
// size before reaching the engine.
func commonSubsequence(oldLines, newLines []string) []anchor {
	n, m := len(oldLines), len(newLines)
	if n == 0 || m == 0 {
		return nil
	}

	// table[i][j] = LCS length of oldLines[i:] and newLines[j:]
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	anchors := make([]anchor, 0, table[0][0])
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			anchors = append(anchors, anchor{oldIndex: i, newIndex: j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return anchors
}

func tally(lines []Line) Summary {
	var s Summary
	for _, l := range lines {
		switch l.Kind {
		case KindAdded:
			s.Added++
		case KindRemoved:
			s.Removed++
		case KindChanged:
			s.Changed++
		case KindUnchanged:
			s.Unchanged++
		}
	}
	return s
}
