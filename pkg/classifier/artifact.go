package classifier

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ArtifactVersion is the only artifact layout this package reads.
const ArtifactVersion = 1

// Artifact is the serialized output of offline training. Bands lists the
// feature names in the order the weights expect them.
type Artifact struct {
	Version int         `yaml:"version" json:"version"`
	Bands   []string    `yaml:"bands" json:"bands"`
	Scaler  Scaler      `yaml:"scaler" json:"scaler"`
	Model   LinearModel `yaml:"model" json:"model"`
}

// LoadArtifact reads and validates a YAML (or JSON) artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classifier artifact: %w", err)
	}
	return ParseArtifact(bytes.NewReader(data))
}

// ParseArtifact decodes an artifact from r and validates it.
func ParseArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding classifier artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the version and that every vector has one entry per band.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("classifier artifact: unsupported version %d", a.Version)
	}
	n := len(a.Bands)
	if n == 0 {
		return fmt.Errorf("%w: artifact lists no bands", ErrDimension)
	}
	if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n || len(a.Model.Weights) != n {
		return fmt.Errorf("%w: %d bands, scaler mean %d, scale %d, weights %d",
			ErrDimension, n, len(a.Scaler.Mean), len(a.Scaler.Scale), len(a.Model.Weights))
	}
	return nil
}

// Classifier builds the runtime classifier.
func (a *Artifact) Classifier() (*Classifier, error) {
	return New(a.Scaler, a.Model)
}

// CheckBands verifies the artifact was trained on exactly the given bands,
// in order.
func (a *Artifact) CheckBands(names []string) error {
	if len(names) != len(a.Bands) {
		return fmt.Errorf("%w: configured %d bands %v, artifact has %d %v",
			ErrDimension, len(names), names, len(a.Bands), a.Bands)
	}
	for i := range names {
		if names[i] != a.Bands[i] {
			return fmt.Errorf("classifier artifact band %d is %q, configured %q", i, a.Bands[i], names[i])
		}
	}
	return nil
}

// Write encodes the artifact as YAML.
func (a *Artifact) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return err
	}
	return enc.Close()
}
