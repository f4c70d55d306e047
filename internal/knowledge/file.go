package knowledge

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// CorpusFile is the top-level structure of a knowledge YAML file.
//
// Example:
//
//	entries:
//	  - question: "What is the minimum support price for wheat?"
//	    answer: "The MSP for wheat is Rs 2,275 per quintal."
type CorpusFile struct {
	Entries []Entry `yaml:"entries"`
}

//go:embed default.yaml
var defaultCorpus []byte

// Default returns the corpus bundled with the binary.
func Default() Source {
	return SourceFunc(func(context.Context) ([]Entry, error) {
		return LoadFromReader(bytes.NewReader(defaultCorpus))
	})
}

// File is a [Source] reading a YAML corpus from disk on every Load.
type File struct {
	Path string
}

var _ Source = File{}

// Load implements [Source].
func (f File) Load(context.Context) ([]Entry, error) {
	return LoadFile(f.Path)
}

// LoadFile reads and parses a corpus YAML file from disk.
func LoadFile(path string) ([]Entry, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open corpus file %q: %w", path, err)
	}
	defer fh.Close()

	entries, err := LoadFromReader(fh)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse corpus file %q: %w", path, err)
	}
	return entries, nil
}

// LoadFromReader parses corpus YAML from r. Unknown keys and empty entries
// are rejected.
func LoadFromReader(r io.Reader) ([]Entry, error) {
	var cf CorpusFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("knowledge: decode corpus yaml: %w", err)
	}
	if err := validateAll(cf.Entries); err != nil {
		return nil, fmt.Errorf("knowledge: invalid corpus: %w", err)
	}
	return cf.Entries, nil
}
