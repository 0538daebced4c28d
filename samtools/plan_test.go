package samtools

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
)

func TestInvocationArgs(t *testing.T) {
	tests := []struct {
		name         string
		inv          Invocation
		subcommand   string
		args         []string
		readsStdin   bool
		writesStdout bool
	}{
		{
			name:       "index",
			inv:        Index("a.bam"),
			subcommand: "index",
			args:       []string{"a.bam"},
		},
		{
			name:       "view file to file",
			inv:        View("in.bam", "out.bam", "r.bed"),
			subcommand: "view",
			args:       []string{"-b", "-o", "out.bam", "-L", "r.bed", "in.bam"},
		},
		{
			name:         "view file to stream",
			inv:          View("in.bam", "", "r.bed"),
			subcommand:   "view",
			args:         []string{"-u", "-L", "r.bed", "in.bam"},
			writesStdout: true,
		},
		{
			name:       "view stream to file",
			inv:        View("", "out.bam", "r.bed"),
			subcommand: "view",
			args:       []string{"-b", "-o", "out.bam", "-L", "r.bed", "-"},
			readsStdin: true,
		},
		{
			name:       "sort single threaded",
			inv:        Sort("in.bam", "out.bam", 1),
			subcommand: "sort",
			args:       []string{"-o", "out.bam", "in.bam"},
		},
		{
			name:       "sort threaded from stream",
			inv:        Sort("", "out.bam", 4),
			subcommand: "sort",
			args:       []string{"-@", "4", "-o", "out.bam", "-"},
			readsStdin: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			expect.EQ(t, test.inv.Subcommand, test.subcommand)
			expect.EQ(t, test.inv.Args, test.args)
			expect.EQ(t, test.inv.ReadsStdin, test.readsStdin)
			expect.EQ(t, test.inv.WritesStdout, test.writesStdout)
		})
	}
}

func TestBuildPlanSingleStage(t *testing.T) {
	plan, err := BuildPlan("in.bam", "out.bam", StreamOps{Sort: true, SortThreads: 2})
	expect.NoError(t, err)
	expect.EQ(t, len(plan.Stages), 1)
	expect.EQ(t, plan.Stages[0].Args, []string{"-@", "2", "-o", "out.bam", "in.bam"})
	expect.EQ(t, plan.Commands(), "samtools sort -@ 2 -o out.bam in.bam")

	plan, err = BuildPlan("in.bam", "out.bam", StreamOps{FilterBED: "r.bed"})
	expect.NoError(t, err)
	expect.EQ(t, len(plan.Stages), 1)
	expect.EQ(t, plan.Stages[0].Args, []string{"-b", "-o", "out.bam", "-L", "r.bed", "in.bam"})
}

func TestBuildPlanStreams(t *testing.T) {
	plan, err := BuildPlan("in.bam", "out.bam", StreamOps{
		FilterBED:   "r.bed",
		Sort:        true,
		SortThreads: 4,
	})
	expect.NoError(t, err)
	expect.EQ(t, len(plan.Stages), 2)
	// Interior boundary streams uncompressed BAM; only the final stage
	// writes the output path.
	expect.EQ(t, plan.Stages[0].Args, []string{"-u", "-L", "r.bed", "in.bam"})
	expect.EQ(t, plan.Stages[0].WritesStdout, true)
	expect.EQ(t, plan.Stages[1].Args, []string{"-@", "4", "-o", "out.bam", "-"})
	expect.EQ(t, plan.Stages[1].ReadsStdin, true)
	expect.EQ(t, plan.Commands(),
		"samtools view -u -L r.bed in.bam | samtools sort -@ 4 -o out.bam -")
}

func TestBuildPlanRejectsEmptyOps(t *testing.T) {
	_, err := BuildPlan("in.bam", "out.bam", StreamOps{})
	assert.Error(t, err)
}
