// Package samtools builds and runs the samtools command pipelines samwrap
// delegates every alignment transformation to.  samwrap never parses or
// rewrites read data itself; this package is the boundary where work is
// handed to the external toolchain.
package samtools

import (
	"fmt"
	"strconv"
	"strings"
)

// Invocation is a single samtools subcommand invocation.  An empty input or
// output path in the builders below means the corresponding side streams
// through a pipe; samtools is told so with an explicit "-" operand rather
// than an implicit stdin/stdout convention.
type Invocation struct {
	Subcommand string
	Args       []string
	// ReadsStdin and WritesStdout record the streaming shape so Plan
	// assembly can connect adjacent stages.
	ReadsStdin   bool
	WritesStdout bool
}

func (inv Invocation) String() string {
	if len(inv.Args) == 0 {
		return "samtools " + inv.Subcommand
	}
	return "samtools " + inv.Subcommand + " " + strings.Join(inv.Args, " ")
}

// Index builds `samtools index <bam>`, which writes <bam>.bai next to the
// input as a side effect.
func Index(bamPath string) Invocation {
	return Invocation{
		Subcommand: "index",
		Args:       []string{bamPath},
	}
}

// View builds the position-filter stage, `samtools view -L <bed>`.  The
// output is BAM: compressed (-b) when written to a file, uncompressed (-u)
// when streamed into a following stage, where recompression would only burn
// CPU.
func View(in, out, bedPath string) Invocation {
	inv := Invocation{Subcommand: "view"}
	if out == "" {
		inv.Args = append(inv.Args, "-u")
		inv.WritesStdout = true
	} else {
		inv.Args = append(inv.Args, "-b", "-o", out)
	}
	inv.Args = append(inv.Args, "-L", bedPath)
	if in == "" {
		inv.Args = append(inv.Args, "-")
		inv.ReadsStdin = true
	} else {
		inv.Args = append(inv.Args, in)
	}
	return inv
}

// Sort builds `samtools sort [-@ N]`.
func Sort(in, out string, threads int) Invocation {
	inv := Invocation{Subcommand: "sort"}
	if threads > 1 {
		inv.Args = append(inv.Args, "-@", strconv.Itoa(threads))
	}
	if out == "" {
		inv.WritesStdout = true
	} else {
		inv.Args = append(inv.Args, "-o", out)
	}
	if in == "" {
		inv.Args = append(inv.Args, "-")
		inv.ReadsStdin = true
	} else {
		inv.Args = append(inv.Args, in)
	}
	return inv
}

// StreamOps selects the streaming operations applied to one input file, in
// the tool's fixed order: position filter, then sort.
type StreamOps struct {
	// FilterBED is the BED path handed to `samtools view -L`; empty disables
	// the filter stage.
	FilterBED string
	// Sort enables `samtools sort`; SortThreads is its -@ value.
	Sort        bool
	SortThreads int
}

func (o StreamOps) enabled() int {
	n := 0
	if o.FilterBED != "" {
		n++
	}
	if o.Sort {
		n++
	}
	return n
}

// Plan is the ordered stage list that turns one input BAM into one output
// BAM.  The first stage reads Input, the last writes Output, and interior
// boundaries stream stdout into stdin.  A single-stage plan reads and writes
// the files directly.
type Plan struct {
	Input  string
	Output string
	Stages []Invocation
}

// Commands renders the plan the way a shell user would write it, for logs
// and dry runs.
func (p Plan) Commands() string {
	parts := make([]string, len(p.Stages))
	for i, stage := range p.Stages {
		parts[i] = stage.String()
	}
	return strings.Join(parts, " | ")
}

// BuildPlan assembles the streaming pipeline for one input.  At least one
// operation must be enabled; indexing is a side effect on the input file and
// is not part of a streaming plan.
func BuildPlan(input, output string, ops StreamOps) (Plan, error) {
	plan := Plan{Input: input, Output: output}
	remaining := ops.enabled()
	if remaining == 0 {
		return plan, fmt.Errorf("samtools.BuildPlan: no streaming operations enabled for %s", input)
	}

	stageIn := input
	if ops.FilterBED != "" {
		remaining--
		stageOut := output
		if remaining > 0 {
			stageOut = "" // stream into the next stage
		}
		plan.Stages = append(plan.Stages, View(stageIn, stageOut, ops.FilterBED))
		stageIn = ""
	}
	if ops.Sort {
		plan.Stages = append(plan.Stages, Sort(stageIn, output, ops.SortThreads))
	}
	return plan, nil
}
