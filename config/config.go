// Package config loads an optional YAML run configuration whose keys mirror
// the CLI flags.  The file provides base values only; flags explicitly set
// on the command line win, and that merge happens at the CLI edge where
// flag.Visit is available.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/estorrs/samwrap/batch"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File mirrors batch.Opts in YAML form.  Pointer fields distinguish an
// absent key from an explicit zero.
type File struct {
	InputDir  *string `yaml:"input_dir"`
	InputList *string `yaml:"input_files"`
	OutputDir *string `yaml:"output_dir"`

	Index       *bool   `yaml:"bulk_index"`
	FilterBED   *string `yaml:"filter_positions"`
	Sort        *bool   `yaml:"bulk_sort"`
	SortThreads *int    `yaml:"sort_threads"`

	Descriptor  *string `yaml:"output_descriptor"`
	Parallelism *int    `yaml:"threads"`
	Verbose     *bool   `yaml:"verbose"`

	Samtools *string `yaml:"samtools"`
	Report   *string `yaml:"report"`
	Checksum *bool   `yaml:"checksum"`
}

// Load reads path and folds its values into opts.  Every key the file does
// not set keeps its existing value; unknown keys are an error rather than a
// silent typo.
func Load(path string, opts *batch.Opts) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "couldn't read run config")
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF { // empty config
			return nil
		}
		return errors.Wrapf(err, "couldn't parse run config %s", path)
	}
	f.apply(opts)
	return nil
}

func (f File) apply(opts *batch.Opts) {
	if f.InputDir != nil {
		opts.InputDir = *f.InputDir
	}
	if f.InputList != nil {
		opts.InputList = *f.InputList
	}
	if f.OutputDir != nil {
		opts.OutputDir = *f.OutputDir
	}
	if f.Index != nil {
		opts.Index = *f.Index
	}
	if f.FilterBED != nil {
		opts.FilterBED = *f.FilterBED
	}
	if f.Sort != nil {
		opts.Sort = *f.Sort
	}
	if f.SortThreads != nil {
		opts.SortThreads = *f.SortThreads
	}
	if f.Descriptor != nil {
		opts.Descriptor = *f.Descriptor
	}
	if f.Parallelism != nil {
		opts.Parallelism = *f.Parallelism
	}
	if f.Verbose != nil {
		opts.Verbose = *f.Verbose
	}
	if f.Samtools != nil {
		opts.SamtoolsPath = *f.Samtools
	}
	if f.Report != nil {
		opts.Report = *f.Report
	}
	if f.Checksum != nil {
		opts.Checksum = *f.Checksum
	}
}
