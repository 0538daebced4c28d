package samtools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Tool is a resolved samtools binary.
type Tool struct {
	Path string
	// Version is the first line of `samtools --version` output, filled in by
	// Probe.
	Version string
}

// Find resolves the samtools binary.  An empty name looks up "samtools" on
// $PATH; a name containing a path separator is taken as an explicit binary
// path and checked for existence and execute permission.
func Find(name string) (*Tool, error) {
	if name == "" {
		name = "samtools"
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		info, err := os.Stat(name)
		if err != nil {
			return nil, errors.E(err, "samtools.Find")
		}
		if info.IsDir() || info.Mode()&0111 == 0 {
			return nil, errors.E(fmt.Sprintf("samtools.Find: %s is not an executable", name))
		}
		return &Tool{Path: name}, nil
	}
	path, err := lookpath.Look(envvar.SliceToMap(os.Environ()), name)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("samtools.Find: %s not found on PATH", name))
	}
	return &Tool{Path: path}, nil
}

// Probe runs `samtools --version` and records the reported version.  It also
// serves as the startup check that the binary actually runs on this system.
func (t *Tool) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.Path, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return errors.E(err, t.Path+" --version")
	}
	line := out.String()
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	t.Version = strings.TrimSpace(line)
	return nil
}

// Run executes every stage of plan as one unit.  Interior stage boundaries
// are connected with OS pipes so no intermediate BAM touches disk.  All
// stages are waited for; the returned error lists every failed stage with
// its captured stderr, since a downstream failure usually takes the upstream
// writer down with a broken pipe.
func (t *Tool) Run(ctx context.Context, plan Plan) error {
	if len(plan.Stages) == 0 {
		return errors.E("samtools.Run: empty plan")
	}
	log.Debug.Printf("samtools: %s", plan.Commands())

	cmds := make([]*exec.Cmd, len(plan.Stages))
	stderrs := make([]bytes.Buffer, len(plan.Stages))
	for i, stage := range plan.Stages {
		args := append([]string{stage.Subcommand}, stage.Args...)
		cmd := exec.CommandContext(ctx, t.Path, args...)
		cmd.Stderr = &stderrs[i]
		// Bound the post-exit wait so a stray grandchild holding the stderr
		// pipe cannot hang the whole run.
		cmd.WaitDelay = 10 * time.Second
		setSysProcAttr(cmd)
		cmds[i] = cmd
	}

	var parentEnds []*os.File
	closeParentEnds := func() {
		for _, f := range parentEnds {
			f.Close() // nolint: errcheck
		}
		parentEnds = nil
	}
	for i := 1; i < len(cmds); i++ {
		pr, pw, err := os.Pipe()
		if err != nil {
			closeParentEnds()
			return errors.E(err, "samtools.Run: pipe")
		}
		cmds[i-1].Stdout = pw
		cmds[i].Stdin = pr
		parentEnds = append(parentEnds, pr, pw)
	}

	started := 0
	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			for _, running := range cmds[:started] {
				running.Process.Kill() // nolint: errcheck
			}
			closeParentEnds()
			for _, running := range cmds[:started] {
				running.Wait() // nolint: errcheck
			}
			return errors.E(err, "samtools.Run: start "+plan.Stages[i].Subcommand)
		}
		started++
	}
	// The children hold their own pipe ends now.  Release ours so EOF can
	// propagate when a stage exits.
	closeParentEnds()

	var failures []string
	for i, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			failures = append(failures, stageFailure(plan.Stages[i], stderrs[i].Bytes(), err))
		}
	}
	if len(failures) > 0 {
		return errors.E("samtools.Run: " + strings.Join(failures, "; "))
	}
	return nil
}

// stageFailure formats one failed stage for the Run error, keeping at most
// the final KiB of its stderr.
func stageFailure(stage Invocation, stderr []byte, err error) string {
	msg := stage.Subcommand + ": " + err.Error()
	text := strings.TrimSpace(string(stderr))
	if text == "" {
		return msg
	}
	const maxStderr = 1024
	if len(text) > maxStderr {
		text = "..." + text[len(text)-maxStderr:]
	}
	return msg + ": " + text
}
