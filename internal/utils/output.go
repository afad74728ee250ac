package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// Output writes data to stdout in the requested machine-readable format.
// FormatText is a no-op so callers can fall through to their own rendering.
func Output(format OutputFormat, data interface{}) (bool, error) {
	return Write(os.Stdout, format, data)
}

// Write is Output against an arbitrary writer.
func Write(w io.Writer, format OutputFormat, data interface{}) (bool, error) {
	var (
		b   []byte
		err error
	)
	switch format {
	case FormatJSON:
		b, err = MarshalJSON(data)
		if err == nil {
			b = append(b, '\n')
		}
	case FormatYAML:
		b, err = MarshalYAML(data)
	default:
		return false, nil
	}
	if err != nil {
		return true, err
	}
	_, err = w.Write(b)
	return true, err
}

// MarshalJSON marshals the provided data as indented JSON.
// Returns the JSON bytes or an error if marshaling fails.
func MarshalJSON(data interface{}) ([]byte, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return jsonData, nil
}

// MarshalYAML marshals the provided data as YAML.
// Returns the YAML bytes or an error if marshaling fails.
func MarshalYAML(data interface{}) ([]byte, error) {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return yamlData, nil
}
