package interval

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesSortedInput(t *testing.T) {
	tests := []struct {
		name      string
		bed       string
		wantByChr map[string][]PosType
		wantBases int64
		sorted    bool
	}{
		{
			name: "disjoint",
			bed:  "chr1\t100\t200\nchr1\t300\t400\nchr2\t10\t20\n",
			wantByChr: map[string][]PosType{
				"chr1": {100, 200, 300, 400},
				"chr2": {10, 20},
			},
			wantBases: 210,
			sorted:    true,
		},
		{
			name: "overlapping and touching",
			bed:  "chr1\t100\t250\nchr1\t200\t300\nchr1\t300\t350\n",
			wantByChr: map[string][]PosType{
				"chr1": {100, 350},
			},
			wantBases: 250,
			sorted:    true,
		},
		{
			name: "comments, blanks and extra columns",
			bed:  "# a comment\ntrack name=probes\nbrowser position chr1\n\nchr1\t5\t15\tprobe1\t960\t+\n",
			wantByChr: map[string][]PosType{
				"chr1": {5, 15},
			},
			wantBases: 10,
			sorted:    true,
		},
		{
			name: "empty intervals dropped",
			bed:  "chr1\t100\t100\nchr1\t200\t210\n",
			wantByChr: map[string][]PosType{
				"chr1": {200, 210},
			},
			wantBases: 10,
			sorted:    true,
		},
		{
			name: "unsorted positions",
			bed:  "chr1\t300\t400\nchr1\t100\t250\nchr1\t200\t310\n",
			wantByChr: map[string][]PosType{
				"chr1": {100, 400},
			},
			wantBases: 300,
			sorted:    false,
		},
		{
			name: "split chromosome",
			bed:  "chr1\t10\t20\nchr2\t10\t20\nchr1\t15\t30\n",
			wantByChr: map[string][]PosType{
				"chr1": {10, 30},
				"chr2": {10, 20},
			},
			wantBases: 30,
			sorted:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, stats, err := Load(strings.NewReader(tt.bed))
			require.NoError(t, err)
			expect.EQ(t, stats.Sorted, tt.sorted)
			expect.EQ(t, stats.Bases, tt.wantBases)
			require.Equal(t, len(tt.wantByChr), len(u.Chroms()))
			for chrom, want := range tt.wantByChr {
				ivs := u.Intervals(chrom)
				got := make([]PosType, 0, 2*len(ivs))
				for _, iv := range ivs {
					got = append(got, iv.Start, iv.End)
				}
				require.Equal(t, want, got, "chromosome %s", chrom)
			}
		})
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		bed  string
	}{
		{"short line", "chr1\t100\n"},
		{"non-integer start", "chr1\tx\t200\n"},
		{"non-integer end", "chr1\t100\ty\n"},
		{"negative start", "chr1\t-5\t200\n"},
		{"end before start", "chr1\t200\t100\n"},
		{"end too large", "chr1\t0\t2147483647\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(strings.NewReader(tt.bed))
			require.Error(t, err)
		})
	}
}

func TestContains(t *testing.T) {
	u, _, err := Load(strings.NewReader("chr1\t100\t200\nchr1\t300\t400\n"))
	require.NoError(t, err)
	assert.True(t, u.Contains("chr1", 100))
	assert.True(t, u.Contains("chr1", 199))
	assert.False(t, u.Contains("chr1", 200))
	assert.False(t, u.Contains("chr1", 250))
	assert.True(t, u.Contains("chr1", 399))
	assert.False(t, u.Contains("chr2", 100))
}

func TestWriteBEDRoundTrip(t *testing.T) {
	in := "chr2\t300\t400\nchr2\t100\t250\nchr1\t5\t15\n"
	u, stats, err := Load(strings.NewReader(in))
	require.NoError(t, err)
	expect.EQ(t, stats.Sorted, false)

	var buf bytes.Buffer
	require.NoError(t, u.WriteBED(&buf))
	// First-seen chromosome order is preserved; positions are normalized.
	expect.EQ(t, buf.String(), "chr2\t100\t250\nchr2\t300\t400\nchr1\t5\t15\n")

	u2, stats2, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	expect.EQ(t, stats2.Sorted, true)
	expect.EQ(t, u2.Bases(), u.Bases())
	expect.EQ(t, u2.NumIntervals(), u.NumIntervals())
}

func TestLoadPath(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	bed := "chr1\t100\t200\nchr1\t150\t300\n"
	plainPath := filepath.Join(tempDir, "positions.bed")
	require.NoError(t, os.WriteFile(plainPath, []byte(bed), 0644))

	gzPath := filepath.Join(tempDir, "positions.bed.gz")
	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	_, err := gz.Write([]byte(bed))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(gzPath, gzBuf.Bytes(), 0644))

	for _, path := range []string{plainPath, gzPath} {
		u, stats, err := LoadPath(path)
		require.NoError(t, err, path)
		expect.EQ(t, stats.Lines, 2)
		expect.EQ(t, stats.Intervals, 1)
		expect.EQ(t, u.Bases(), int64(200))
	}

	_, _, err = LoadPath(filepath.Join(tempDir, "missing.bed"))
	require.Error(t, err)
}
