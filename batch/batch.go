// Package batch fans a set of BAM files out over a worker pool and drives
// each one through a samtools pipeline.  All alignment-level work is done by
// the samtools children; this package owns input collection, output naming,
// preflight validation, scheduling and the run summary.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/estorrs/samwrap/baminfo"
	"github.com/estorrs/samwrap/interval"
	"github.com/estorrs/samwrap/samtools"
	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	"golang.org/x/sync/errgroup"
)

// Opts configures one bulk run.  The zero value is not usable; start from
// DefaultOpts.
type Opts struct {
	// Exactly one of InputDir and InputList selects the inputs.  InputDir
	// keeps the files whose name ends in .bam, non-recursively; InputList
	// names a text file with one BAM path per line, blank lines skipped.
	InputDir  string
	InputList string
	// OutputDir receives every produced file; created if absent.
	OutputDir string

	// Index runs `samtools index` on each input, in place, before any
	// streaming work.
	Index bool
	// FilterBED enables the position filter; the file may be plain or
	// gzip-compressed BED.
	FilterBED string
	// Sort enables coordinate sorting; SortThreads is samtools' -@ value.
	Sort        bool
	SortThreads int

	// Descriptor is inserted before the .bam suffix of each output name.
	Descriptor string
	// Parallelism is the number of inputs processed concurrently, clamped to
	// [1, number of inputs].
	Parallelism int
	// Verbose prints a completion line per input to stderr.
	Verbose bool

	// SamtoolsPath overrides $PATH discovery of the samtools binary.
	SamtoolsPath string
	// Report, when set, is the path of a TSV run report; Checksum adds a
	// seahash column for each produced output.
	Report   string
	Checksum bool
	// DryRun prints each input's command plan and executes nothing.
	DryRun bool
}

// DefaultOpts is the baseline the CLI flags start from.
var DefaultOpts = Opts{
	Descriptor:  ".output",
	SortThreads: 1,
	Parallelism: 1,
}

func (o Opts) validate() error {
	if o.OutputDir == "" {
		return errors.E("batch: an output directory is required")
	}
	if o.InputDir == "" && o.InputList == "" {
		return errors.E("batch: either an input directory or an input list file is required")
	}
	if o.InputDir != "" && o.InputList != "" {
		return errors.E("batch: input directory and input list file are mutually exclusive")
	}
	if !o.Index && o.FilterBED == "" && !o.Sort {
		return errors.E("batch: no operation selected (index, filter or sort)")
	}
	if o.SortThreads < 1 {
		return errors.E("batch: sort threads must be at least 1")
	}
	return nil
}

// hasStream reports whether any stage writes an output file.  Index is an
// in-place side effect on the input, so an index-only run produces none.
func (o Opts) hasStream() bool {
	return o.FilterBED != "" || o.Sort
}

func (o Opts) streamOps(bedPath string) samtools.StreamOps {
	return samtools.StreamOps{
		FilterBED:   bedPath,
		Sort:        o.Sort,
		SortThreads: o.SortThreads,
	}
}

// operations renders the enabled operations in their fixed execution order.
func (o Opts) operations() string {
	var ops []string
	if o.Index {
		ops = append(ops, "index")
	}
	if o.FilterBED != "" {
		ops = append(ops, "filter")
	}
	if o.Sort {
		ops = append(ops, "sort")
	}
	return strings.Join(ops, ",")
}

// Result is one input's outcome.
type Result struct {
	Input  string
	Output string // empty for index-only runs
	Err    error
	// Elapsed is the wall time this input spent in its samtools pipeline.
	Elapsed time.Duration
	// Checksum is the seahash of the produced output, when requested.
	Checksum string
}

// Run executes one bulk run.  Inputs are processed concurrently; one input's
// failure does not stop the others, and the returned error summarizes every
// failure at the end.
func Run(ctx context.Context, opts Opts) error {
	if err := opts.validate(); err != nil {
		return err
	}
	runID := uuid.New().String()[:8]

	inputs, err := collectInputs(ctx, opts)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.E("batch: no input BAMs found")
	}
	outputs, err := outputPaths(inputs, opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		return dryRun(inputs, outputs, opts)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return errors.E(err, "batch: create output directory")
	}
	bedPath := opts.FilterBED
	if bedPath != "" {
		if bedPath, err = prepareBED(opts, runID); err != nil {
			return err
		}
	}

	tool, err := samtools.Find(opts.SamtoolsPath)
	if err != nil {
		return err
	}
	if err := tool.Probe(ctx); err != nil {
		return err
	}
	log.Printf("run %s: %s, %d inputs, operations %s", runID, tool.Version, len(inputs), opts.operations())

	headers, err := preflight(inputs)
	if err != nil {
		return err
	}
	if opts.Index {
		fresh := 0
		for _, in := range inputs {
			if stale, err := baminfo.IndexIsStale(in); err == nil && !stale {
				fresh++
			}
		}
		if fresh > 0 {
			log.Printf("index: %d of %d inputs already have a fresh .bai", fresh, len(inputs))
		}
	}

	workers := opts.Parallelism
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}
	results := make([]Result, len(inputs))
	start := time.Now()
	err = traverse.Each(workers, func(jobIdx int) error {
		startIdx := (jobIdx * len(inputs)) / workers
		endIdx := ((jobIdx + 1) * len(inputs)) / workers
		for i := startIdx; i < endIdx; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = processOne(ctx, tool, inputs[i], outputs[i], headers[i], bedPath, opts)
			if opts.Verbose {
				fmt.Fprintf(os.Stderr, "%s completed\n", inputs[i])
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	ok, failed := 0, 0
	var failures []string
	for _, res := range results {
		if res.Err != nil {
			failed++
			failures = append(failures, filepath.Base(res.Input))
			log.Error.Printf("%s: %v", res.Input, res.Err)
		} else {
			ok++
		}
	}
	log.Printf("run %s: %d ok, %d failed in %s", runID, ok, failed,
		time.Since(start).Round(time.Millisecond))
	logChildUsage()

	if opts.Report != "" {
		if err := writeReport(opts.Report, runID, opts, results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return errors.E(fmt.Sprintf("batch: %d of %d inputs failed: %s",
			failed, len(results), strings.Join(failures, ", ")))
	}
	return nil
}

// processOne runs every enabled operation for a single input.
func processOne(ctx context.Context, tool *samtools.Tool, input, output string,
	header *sam.Header, bedPath string, opts Opts) (res Result) {
	res = Result{Input: input, Output: output}
	begin := time.Now()
	defer func() { res.Elapsed = time.Since(begin) }()

	if opts.Index {
		plan := samtools.Plan{Input: input, Stages: []samtools.Invocation{samtools.Index(input)}}
		if res.Err = tool.Run(ctx, plan); res.Err != nil {
			return
		}
		if res.Err = baminfo.CheckIndex(baminfo.IndexPath(input), header); res.Err != nil {
			return
		}
	}
	if output != "" {
		var plan samtools.Plan
		if plan, res.Err = samtools.BuildPlan(input, output, opts.streamOps(bedPath)); res.Err != nil {
			return
		}
		if res.Err = tool.Run(ctx, plan); res.Err != nil {
			return
		}
		if opts.Checksum {
			res.Checksum, res.Err = checksumFile(output)
		}
	}
	return
}

// dryRun prints each input's command plan, one pipeline per line, without
// touching the filesystem or requiring a samtools binary.
func dryRun(inputs, outputs []string, opts Opts) error {
	for i, in := range inputs {
		if opts.Index {
			fmt.Println(samtools.Index(in).String())
		}
		if opts.hasStream() {
			plan, err := samtools.BuildPlan(in, outputs[i], opts.streamOps(opts.FilterBED))
			if err != nil {
				return err
			}
			fmt.Println(plan.Commands())
		}
	}
	return nil
}

// collectInputs gathers the input BAM paths.  Directory scans are
// non-recursive and keep only names ending in .bam, in lexical order; list
// files are read through base/file so registered remote schemes keep
// working.
func collectInputs(ctx context.Context, opts Opts) ([]string, error) {
	if opts.InputDir != "" {
		entries, err := os.ReadDir(opts.InputDir)
		if err != nil {
			return nil, errors.E(err, "batch: read input directory")
		}
		var inputs []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".bam") {
				continue
			}
			inputs = append(inputs, filepath.Join(opts.InputDir, e.Name()))
		}
		return inputs, nil
	}
	f, err := file.Open(ctx, opts.InputList)
	if err != nil {
		return nil, errors.E(err, "batch: open input list")
	}
	defer f.Close(ctx) // nolint: errcheck
	var inputs []string
	scanner := bufio.NewScanner(f.Reader(ctx))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "batch: read input list")
	}
	return inputs, nil
}

// outputPath derives one output name: the descriptor goes in front of the
// .bam suffix, and a name without the suffix gets the descriptor appended.
func outputPath(input string, opts Opts) string {
	base := filepath.Base(input)
	if strings.HasSuffix(base, ".bam") {
		base = base[:len(base)-len(".bam")] + opts.Descriptor + ".bam"
	} else {
		base += opts.Descriptor
	}
	return filepath.Join(opts.OutputDir, base)
}

// outputPaths maps every input to its output, rejecting collisions up front:
// two inputs with the same base name would otherwise silently race on one
// output file.
func outputPaths(inputs []string, opts Opts) ([]string, error) {
	outs := make([]string, len(inputs))
	if !opts.hasStream() {
		return outs, nil
	}
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		out := outputPath(in, opts)
		if prev, ok := seen[out]; ok {
			return nil, errors.E(fmt.Sprintf(
				"batch: inputs %s and %s both map to output %s", prev, in, out))
		}
		seen[out] = in
		outs[i] = out
	}
	return outs, nil
}

// prepareBED validates the positions file before any samtools child is
// spawned.  When loading changed its content (merged overlaps, reordered
// intervals) or the file is gzip-compressed, the normalized union is written
// into the output directory and that path is used instead.
func prepareBED(opts Opts, runID string) (string, error) {
	union, stats, err := interval.LoadPath(opts.FilterBED)
	if err != nil {
		return "", err
	}
	log.Printf("filter: %d intervals covering %d bases on %d chromosomes (%s)",
		stats.Intervals, stats.Bases, len(union.Chroms()), opts.FilterBED)
	if stats.Sorted && stats.Intervals == stats.Lines && !strings.HasSuffix(opts.FilterBED, ".gz") {
		return opts.FilterBED, nil
	}
	norm := filepath.Join(opts.OutputDir, "samwrap-"+runID+".positions.bed")
	f, err := os.Create(norm)
	if err != nil {
		return "", errors.E(err, "batch: write normalized positions")
	}
	if err := union.WriteBED(f); err != nil {
		f.Close() // nolint: errcheck
		return "", errors.E(err, "batch: write normalized positions")
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	log.Printf("filter: normalized positions written to %s", norm)
	return norm, nil
}

// preflight opens every input as a BAM up front, so a bad path or truncated
// file fails the run before burning a partial batch.
func preflight(inputs []string) ([]*sam.Header, error) {
	headers := make([]*sam.Header, len(inputs))
	eg := errgroup.Group{}
	for i, in := range inputs {
		i, in := i, in
		eg.Go(func() error {
			h, err := baminfo.ReadHeader(in)
			if err != nil {
				return err
			}
			headers[i] = h
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return headers, nil
}
