package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/estorrs/samwrap/baminfo"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/gosh"
	"v.io/x/lib/lookpath"
)

func hasSamtools(t *testing.T, sh *gosh.Shell) bool {
	if _, err := lookpath.Look(sh.Vars, "samtools"); err != nil {
		t.Skipf("samtools not found on the machine. Skipping the test")
		return false
	}
	return true
}

// TestRunRealSamtools drives a full index+filter+sort batch through an
// actual samtools binary when one is installed.
func TestRunRealSamtools(t *testing.T) {
	sh := gosh.NewShell(t)
	defer sh.Cleanup()
	if !hasSamtools(t, sh) {
		return
	}
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	inDir := filepath.Join(tempDir, "in")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	for _, name := range []string{"a.bam", "b.bam"} {
		writeBAM(t, filepath.Join(inDir, name))
	}
	bedPath := filepath.Join(tempDir, "regions.bed")
	require.NoError(t, os.WriteFile(bedPath, []byte("chr1\t0\t500\n"), 0o644))

	outDir := filepath.Join(tempDir, "out")
	opts := DefaultOpts
	opts.InputDir = inDir
	opts.OutputDir = outDir
	opts.Index = true
	opts.FilterBED = bedPath
	opts.Sort = true
	opts.Parallelism = 2
	require.NoError(t, Run(context.Background(), opts))

	for _, name := range []string{"a.output.bam", "b.output.bam"} {
		outPath := filepath.Join(outDir, name)
		header, err := baminfo.ReadHeader(outPath)
		require.NoError(t, err)
		require.Len(t, header.Refs(), 1)
		expect.EQ(t, header.Refs()[0].Name(), "chr1")

		cmd := sh.Cmd("samtools", "quickcheck", outPath)
		cmd.Run()
		require.NoError(t, cmd.Err)
	}
	for _, name := range []string{"a.bam.bai", "b.bam.bai"} {
		_, err := os.Stat(filepath.Join(inDir, name))
		expect.NoError(t, err)
	}
}
