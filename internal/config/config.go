// Package config loads the optional YAML defaults file read by the zpack
// command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/sizing"
	"github.com/meigma/zpack/internal/walk"
)

// maxFileSize bounds how much of a defaults file is read.
const maxFileSize = 1 << 20

// ErrTooLarge is returned for defaults files over 1 MiB.
var ErrTooLarge = errors.New("config: file too large")

// File mirrors the YAML defaults file:
//
//	method: zstd
//	level: 9
//	exclude: ["*.tmp", ".git"]
//	output: ./out
type File struct {
	Method  string   `yaml:"method"`
	Level   int      `yaml:"level"`
	Exclude []string `yaml:"exclude"`
	Output  string   `yaml:"output"`
}

// Defaults is the effective configuration after a file has been applied.
type Defaults struct {
	Compress zpack.CompressOptions
	Exclude  []string
	Output   string
}

// Builtin returns the defaults used when no file is given.
func Builtin() Defaults {
	return Defaults{Compress: zpack.DefaultCompressOptions}
}

// Load reads and validates the file at path. An empty path yields Builtin.
func Load(path string) (Defaults, error) {
	if path == "" {
		return Builtin(), nil
	}
	f, err := os.Open(path) //nolint:gosec // path is supplied by the user
	if err != nil {
		return Defaults{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a defaults file from r. Unknown keys are rejected.
func Parse(r io.Reader) (Defaults, error) {
	data, err := sizing.ReadAllWithLimit(r, maxFileSize, ErrTooLarge)
	if err != nil {
		return Defaults{}, err
	}
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Defaults{}, fmt.Errorf("parse config: %w", err)
	}
	return file.Apply(Builtin())
}

// Apply overlays the non-empty fields of f onto d.
func (f *File) Apply(d Defaults) (Defaults, error) {
	if f.Method != "" {
		opts, err := zpack.ParseCompressOptions(f.Method)
		if err != nil {
			return Defaults{}, fmt.Errorf("config method: %w", err)
		}
		d.Compress = opts
	}
	if f.Level != 0 {
		d.Compress.Level = f.Level
	}
	if len(f.Exclude) > 0 {
		if err := walk.ValidatePatterns(f.Exclude); err != nil {
			return Defaults{}, fmt.Errorf("config: %w", err)
		}
		d.Exclude = append(d.Exclude, f.Exclude...)
	}
	if f.Output != "" {
		d.Output = f.Output
	}
	return d, nil
}
