package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// PosType is the coordinate type of a BED interval boundary.
type PosType int32

const posTypeMax = math.MaxInt32

// Interval is a single half-open [Start, End) region on a named chromosome,
// with the usual zero-based BED coordinates.
type Interval struct {
	Chrom string
	Start PosType
	End   PosType
}

// Stats summarizes one positions-file load.
type Stats struct {
	// Lines is the number of data lines parsed (comments and blanks excluded).
	Lines int
	// Intervals is the number of disjoint intervals kept after merging.
	Intervals int
	// Bases is the total number of bases covered by the union.
	Bases int64
	// Sorted reports whether the input was already position-sorted per
	// chromosome, with no chromosome split across non-adjacent line groups.
	// When false, the union was assembled out of order and differs textually
	// from the input even if no intervals overlap.
	Sorted bool
}

// Union is a set of disjoint intervals grouped by chromosome.  Chromosomes
// keep their first-seen input order so a normalized rewrite stays close to
// the original file.  Per chromosome, the intervals are stored as a sorted
// sequence of interval endpoints: the interval #k (numbering from zero)
// spans [elem[2k], elem[2k+1]).  This keeps Contains a binary search with a
// parity check, and merging trivial.
type Union struct {
	chroms  []string
	byChrom map[string][]PosType
}

// Chroms returns the chromosome names in first-seen input order.
func (u *Union) Chroms() []string { return u.chroms }

// NumIntervals returns the number of disjoint intervals across all
// chromosomes.
func (u *Union) NumIntervals() int {
	n := 0
	for _, endpoints := range u.byChrom {
		n += len(endpoints) / 2
	}
	return n
}

// Bases returns the total number of bases covered.
func (u *Union) Bases() int64 {
	var total int64
	for _, endpoints := range u.byChrom {
		for i := 0; i < len(endpoints); i += 2 {
			total += int64(endpoints[i+1] - endpoints[i])
		}
	}
	return total
}

// Intervals materializes the disjoint intervals of one chromosome, in
// increasing position order.  It returns nil for an unknown chromosome.
func (u *Union) Intervals(chrom string) []Interval {
	endpoints := u.byChrom[chrom]
	if endpoints == nil {
		return nil
	}
	ivs := make([]Interval, 0, len(endpoints)/2)
	for i := 0; i < len(endpoints); i += 2 {
		ivs = append(ivs, Interval{Chrom: chrom, Start: endpoints[i], End: endpoints[i+1]})
	}
	return ivs
}

// Contains checks whether the single position [pos, pos+1) is covered.
func (u *Union) Contains(chrom string, pos PosType) bool {
	endpoints := u.byChrom[chrom]
	if endpoints == nil {
		return false
	}
	// An odd insertion index means pos+1 landed inside an interval.
	idx := sort.Search(len(endpoints), func(i int) bool { return endpoints[i] >= pos+1 })
	return idx&1 == 1
}

// WriteBED writes the union as a plain three-column BED, chromosomes in
// first-seen order.
func (u *Union) WriteBED(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, chrom := range u.chroms {
		endpoints := u.byChrom[chrom]
		for i := 0; i < len(endpoints); i += 2 {
			if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\n", chrom, endpoints[i], endpoints[i+1]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// splitColumns extracts up to len(tokens) whitespace-delimited tokens from
// curLine, returning the number found.  Any run of characters <= ' ' is a
// delimiter, which accepts both tab- and space-separated BED variants.
func splitColumns(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// isHeaderLine reports whether a BED line is one of the non-data lines UCSC
// tools emit.
func isHeaderLine(line []byte) bool {
	return len(line) == 0 || line[0] == '#' ||
		bytes.HasPrefix(line, []byte("track")) ||
		bytes.HasPrefix(line, []byte("browser"))
}

// treeInterval is the llrb element used when assembling out-of-order input.
type treeInterval struct {
	start, end PosType
}

// Compare orders by start, then end, as llrb requires.  Exact duplicates
// collapse, which is what union semantics want anyway.
func (iv treeInterval) Compare(c llrb.Comparable) int {
	other := c.(treeInterval)
	if iv.start != other.start {
		return int(iv.start) - int(other.start)
	}
	return int(iv.end) - int(other.end)
}

type rawInterval struct {
	chrom      string
	start, end PosType
}

// Load parses a BED stream into a Union.  Interval lines must have at least
// chrom/start/end columns; extra columns are ignored, as are blank lines and
// '#', 'track' and 'browser' lines.  Unlike strict loaders, input need not be
// position-sorted: out-of-order and split-chromosome files are accepted and
// normalized (Stats.Sorted reports which path was taken).
func Load(r io.Reader) (*Union, Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(r)

	var raw []rawInterval
	var tokens [3][]byte
	sorted := true
	seenChrom := make(map[string]bool)
	prevChrom := ""
	var prevStart PosType

	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isHeaderLine(curLine) {
			continue
		}
		if splitColumns(tokens[:], curLine) != 3 {
			return nil, stats, fmt.Errorf("interval.Load: line %d has fewer than 3 columns", lineIdx)
		}
		start, err := strconv.Atoi(string(tokens[1]))
		if err != nil {
			return nil, stats, errors.E(err, fmt.Sprintf("interval.Load: line %d: bad start coordinate", lineIdx))
		}
		end, err := strconv.Atoi(string(tokens[2]))
		if err != nil {
			return nil, stats, errors.E(err, fmt.Sprintf("interval.Load: line %d: bad end coordinate", lineIdx))
		}
		if start < 0 {
			return nil, stats, fmt.Errorf("interval.Load: line %d: negative start coordinate %d", lineIdx, start)
		}
		if end < start || end >= posTypeMax {
			return nil, stats, fmt.Errorf("interval.Load: line %d: invalid coordinate pair [%d, %d)", lineIdx, start, end)
		}
		stats.Lines++
		if end == start {
			// Empty intervals cover nothing; samtools ignores them too.
			continue
		}
		chrom := string(tokens[0])
		if chrom != prevChrom {
			if seenChrom[chrom] {
				sorted = false
			}
			prevChrom = chrom
		} else if PosType(start) < prevStart {
			sorted = false
		}
		prevStart = PosType(start)
		seenChrom[chrom] = true
		raw = append(raw, rawInterval{chrom: chrom, start: PosType(start), end: PosType(end)})
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}
	stats.Sorted = sorted

	u := &Union{byChrom: make(map[string][]PosType)}
	if sorted {
		mergeSorted(u, raw)
	} else {
		mergeViaTree(u, raw)
	}
	stats.Intervals = u.NumIntervals()
	stats.Bases = u.Bases()
	return u, stats, nil
}

// mergeSorted merges position-sorted intervals in a single pass.
func mergeSorted(u *Union, raw []rawInterval) {
	prevChrom := ""
	var prevStart, prevEnd PosType
	flush := func() {
		if prevChrom != "" {
			u.byChrom[prevChrom] = append(u.byChrom[prevChrom], prevStart, prevEnd)
		}
	}
	for _, iv := range raw {
		if iv.chrom != prevChrom {
			flush()
			if _, seen := u.byChrom[iv.chrom]; !seen {
				u.chroms = append(u.chroms, iv.chrom)
				u.byChrom[iv.chrom] = []PosType{}
			}
			prevChrom = iv.chrom
			prevStart = iv.start
			prevEnd = iv.end
			continue
		}
		if iv.start > prevEnd {
			u.byChrom[prevChrom] = append(u.byChrom[prevChrom], prevStart, prevEnd)
			prevStart = iv.start
			prevEnd = iv.end
		} else if iv.end > prevEnd {
			// Touching or overlapping; extend.
			prevEnd = iv.end
		}
	}
	flush()
}

// mergeViaTree assembles the union through per-chromosome llrb trees so that
// out-of-order input costs O(n log n) instead of a failed run.
func mergeViaTree(u *Union, raw []rawInterval) {
	trees := make(map[string]*llrb.Tree)
	for _, iv := range raw {
		t := trees[iv.chrom]
		if t == nil {
			t = &llrb.Tree{}
			trees[iv.chrom] = t
			u.chroms = append(u.chroms, iv.chrom)
		}
		t.Insert(treeInterval{start: iv.start, end: iv.end})
	}
	for _, chrom := range u.chroms {
		endpoints := []PosType{}
		prevStart := PosType(-1)
		prevEnd := PosType(-1)
		trees[chrom].Do(func(item llrb.Comparable) bool {
			iv := item.(treeInterval)
			if prevEnd < 0 {
				prevStart, prevEnd = iv.start, iv.end
				return false
			}
			if iv.start > prevEnd {
				endpoints = append(endpoints, prevStart, prevEnd)
				prevStart, prevEnd = iv.start, iv.end
			} else if iv.end > prevEnd {
				prevEnd = iv.end
			}
			return false
		})
		if prevEnd >= 0 {
			endpoints = append(endpoints, prevStart, prevEnd)
		}
		u.byChrom[chrom] = endpoints
	}
}

// LoadPath is a wrapper for Load that takes a path instead of an io.Reader.
// Gzip-compressed files are detected by suffix and decompressed on the fly.
func LoadPath(path string) (u *Union, stats Stats, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer func() {
			if cerr := gz.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		reader = gz
	}
	return Load(reader)
}
