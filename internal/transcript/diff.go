package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// SegmentKind classifies a run of words in a correction diff.
type SegmentKind int

const (
	// SegmentSame marks words unchanged by the correction.
	SegmentSame SegmentKind = iota
	// SegmentChanged marks words the correction rewrote in place.
	SegmentChanged
	// SegmentInserted marks words only present in the corrected text.
	SegmentInserted
	// SegmentDeleted marks words only present in the original text.
	SegmentDeleted
)

// Segment is one run of words sharing a diff classification. Text carries the
// corrected wording except for SegmentDeleted, where it carries the removed
// original words.
type Segment struct {
	Text string
	Kind SegmentKind
}

// Alignment costs for the word-level diff. Substitutions between similar
// words cost less than an insert/delete pair, so "wants" aligns with "want"
// instead of being treated as unrelated.
const (
	insertCost = 1.0
	deleteCost = 1.0
)

// DiffWords aligns the original and corrected texts word by word and returns
// the corrected text split into classified segments, ready for highlighted
// rendering. Word similarity is scored with Jaro-Winkler, so morphological
// fixes ("wants" -> "want") show up as changed words rather than a
// delete/insert pair.
func DiffWords(original, corrected string) []Segment {
	a := strings.Fields(original)
	b := strings.Fields(corrected)

	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	// Standard edit-distance DP over word tokens with similarity-weighted
	// substitution cost.
	rows, cols := len(a)+1, len(b)+1
	cost := make([][]float64, rows)
	for i := range cost {
		cost[i] = make([]float64, cols)
	}
	for i := 1; i < rows; i++ {
		cost[i][0] = float64(i) * deleteCost
	}
	for j := 1; j < cols; j++ {
		cost[0][j] = float64(j) * insertCost
	}
	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			sub := cost[i-1][j-1] + substitutionCost(a[i-1], b[j-1])
			del := cost[i-1][j] + deleteCost
			ins := cost[i][j-1] + insertCost
			cost[i][j] = minFloat(sub, minFloat(del, ins))
		}
	}

	// Backtrack, collecting segments in reverse.
	var reversed []Segment
	i, j := len(a), len(b)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && cost[i][j] == cost[i-1][j-1]+substitutionCost(a[i-1], b[j-1]):
			kind := SegmentChanged
			if strings.EqualFold(a[i-1], b[j-1]) {
				kind = SegmentSame
			}
			reversed = append(reversed, Segment{Text: b[j-1], Kind: kind})
			i--
			j--
		case i > 0 && cost[i][j] == cost[i-1][j]+deleteCost:
			reversed = append(reversed, Segment{Text: a[i-1], Kind: SegmentDeleted})
			i--
		default:
			reversed = append(reversed, Segment{Text: b[j-1], Kind: SegmentInserted})
			j--
		}
	}

	// Reverse and merge adjacent segments of the same kind.
	var out []Segment
	for k := len(reversed) - 1; k >= 0; k-- {
		seg := reversed[k]
		if n := len(out); n > 0 && out[n-1].Kind == seg.Kind {
			out[n-1].Text += " " + seg.Text
			continue
		}
		out = append(out, seg)
	}
	return out
}

// substitutionCost scores aligning word x with word y. Identical words
// (case-insensitive) are free; otherwise the cost scales with dissimilarity
// up to 2, the price of a delete/insert pair.
func substitutionCost(x, y string) float64 {
	if strings.EqualFold(x, y) {
		return 0
	}
	sim := matchr.JaroWinkler(strings.ToLower(x), strings.ToLower(y), false)
	return 2 - 2*sim
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
