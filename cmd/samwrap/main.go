package main

// samwrap runs bulk samtools operations (index, position filter, sort) over
// a set of BAM files concurrently.
//
// Usage: samwrap -output-dir out/ -input-dir bams/ -bulk-sort

import (
	"flag"
	"os"

	"github.com/estorrs/samwrap/batch"
	"github.com/estorrs/samwrap/config"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

var (
	inputDirFlag    = flag.String("input-dir", "", "Directory containing input .bam files (non-recursive)")
	inputFilesFlag  = flag.String("input-files", "", "File listing input BAM paths, one per line")
	outputDirFlag   = flag.String("output-dir", "", "Directory outputs are written to; created if absent")
	indexFlag       = flag.Bool("bulk-index", false, "Index the input bams in place (samtools index)")
	sortFlag        = flag.Bool("bulk-sort", false, "Sort bams (samtools sort)")
	sortThreadsFlag = flag.Int("sort-threads", batch.DefaultOpts.SortThreads, "Number of threads samtools uses inside one sort")
	filterFlag      = flag.String("filter-positions", "", "BED file of positions to keep (samtools view -L); plain or gzip-compressed")
	descriptorFlag  = flag.String("output-descriptor", batch.DefaultOpts.Descriptor, "Identifier inserted before the .bam extension of each output, e.g. \".filtered.sorted\"")
	threadsFlag     = flag.Int("threads", batch.DefaultOpts.Parallelism, "Number of input files processed concurrently")
	verboseFlag     = flag.Bool("verbose", false, "Print each input to stderr as it completes")
	configFlag      = flag.String("config", "", "YAML run configuration; explicit flags override its values")
	samtoolsFlag    = flag.String("samtools", "", "Path of the samtools binary; default is a $PATH lookup")
	reportFlag      = flag.String("report", "", "Write a per-input TSV run report to this path")
	checksumFlag    = flag.Bool("checksum", false, "Include output checksums in the report")
	dryRunFlag      = flag.Bool("dry-run", false, "Print the command plan per input and execute nothing")
)

func usage() {
	os.Stderr.WriteString(`Usage:
  samwrap -output-dir DIR (-input-dir DIR | -input-files LIST) [operations] [flags]

samwrap runs samtools operations over a batch of BAM files concurrently.
Operations always apply per input in a fixed order:

  indexing (-bulk-index) -> position filtering (-filter-positions) -> sorting (-bulk-sort)

The filter and sort stages of one input are connected by a pipe, so no
intermediate file is written. Each input produces one output BAM named after
it with -output-descriptor inserted before the .bam extension; indexing
happens in place next to the input and produces no output file.

Flags:
`)
	flag.PrintDefaults()
}

// applyFlags overlays every flag the user set explicitly onto opts, after
// any -config values have been folded in.
func applyFlags(opts *batch.Opts) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-dir":
			opts.InputDir = *inputDirFlag
		case "input-files":
			opts.InputList = *inputFilesFlag
		case "output-dir":
			opts.OutputDir = *outputDirFlag
		case "bulk-index":
			opts.Index = *indexFlag
		case "bulk-sort":
			opts.Sort = *sortFlag
		case "sort-threads":
			opts.SortThreads = *sortThreadsFlag
		case "filter-positions":
			opts.FilterBED = *filterFlag
		case "output-descriptor":
			opts.Descriptor = *descriptorFlag
		case "threads":
			opts.Parallelism = *threadsFlag
		case "verbose":
			opts.Verbose = *verboseFlag
		case "samtools":
			opts.SamtoolsPath = *samtoolsFlag
		case "report":
			opts.Report = *reportFlag
		case "checksum":
			opts.Checksum = *checksumFlag
		case "dry-run":
			opts.DryRun = *dryRunFlag
		}
	})
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	opts := batch.DefaultOpts
	if *configFlag != "" {
		if err := config.Load(*configFlag, &opts); err != nil {
			log.Fatalf("samwrap: %v", err)
		}
	}
	applyFlags(&opts)

	if err := batch.Run(vcontext.Background(), opts); err != nil {
		log.Fatalf("samwrap: %v", err)
	}
}
