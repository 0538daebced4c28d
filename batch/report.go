package batch

import (
	"fmt"
	"io"
	"os"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// writeReport writes the per-input run report as TSV, one row per input.  A
// comment line carrying the run id precedes the header so reports from
// different runs can be concatenated and still attributed.
func writeReport(path, runID string, opts Opts, results []Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.E(err, "batch: create report")
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if _, err = fmt.Fprintf(f, "# samwrap run %s\n", runID); err != nil {
		return err
	}

	w := tsv.NewWriter(f)
	w.WriteString("input")
	w.WriteString("output")
	w.WriteString("operations")
	w.WriteString("status")
	w.WriteString("elapsed_ms")
	if opts.Checksum {
		w.WriteString("checksum")
	}
	if err = w.EndLine(); err != nil {
		return err
	}

	ops := opts.operations()
	for _, res := range results {
		w.WriteString(res.Input)
		if res.Output == "" {
			w.WriteString("-")
		} else {
			w.WriteString(res.Output)
		}
		w.WriteString(ops)
		if res.Err == nil {
			w.WriteString("ok")
		} else {
			w.WriteString("failed")
		}
		w.WriteInt64(res.Elapsed.Milliseconds())
		if opts.Checksum {
			if res.Checksum == "" {
				w.WriteString("-")
			} else {
				w.WriteString(res.Checksum)
			}
		}
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// checksumFile returns the seahash of a produced output as fixed-width hex.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.E(err, "batch: checksum")
	}
	defer f.Close() // nolint: errcheck
	h := seahash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.E(err, "batch: checksum "+path)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
