package config

import (
	"bytes"
	"os"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"niftitools/pkg/serrors"
	"niftitools/pkg/transform"
)

// Step is one entry of a pipeline file, a single-key mapping from an operator
// name to its parameters:
//
//	# pipeline.yaml
//	- rotate:
//	    degrees: [90, 0, 90]
//	    save_partial: true
type Step struct {
	Name   string
	Params yaml.Node
	line   int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		// bare operator name without parameters
		s.Name, s.line = node.Value, node.Line
		return nil
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return serrors.With(serrors.ErrConfiguration,
			"line %d: a pipeline step must map exactly one operator name to its parameters", node.Line)
	}
	s.Name = node.Content[0].Value
	s.Params = *node.Content[1]
	s.line = node.Line
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Step) MarshalYAML() (any, error) {
	params := s.Params
	if params.Kind == 0 {
		params = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: s.Name},
			&params,
		},
	}, nil
}

// Build validates the parameters and constructs the transform. Parameter keys
// the operator does not know are rejected.
func (s Step) Build() (transform.Transform, error) {
	var decode transform.DecodeFunc
	if s.Params.Kind != 0 {
		decode = s.decodeStrict
	}
	t, err := transform.Build(s.Name, decode)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline step at line %d", s.line)
	}
	return t, nil
}

// decodeStrict decodes the parameters into v, failing on unknown fields.
func (s Step) decodeStrict(v any) error {
	data, err := yaml.Marshal(&s.Params)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

// Pipeline is the ordered list of steps read from a pipeline file.
type Pipeline []Step

// Transforms builds every step. Any invalid step fails the whole pipeline, so
// configuration problems surface before an image is touched.
func (p Pipeline) Transforms() ([]transform.Transform, error) {
	if len(p) == 0 {
		return nil, serrors.With(serrors.ErrConfiguration, "pipeline has no steps")
	}
	out := make([]transform.Transform, 0, len(p))
	for _, s := range p {
		t, err := s.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ParsePipeline decodes a pipeline document.
func ParsePipeline(data []byte) (Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, serrors.Wrap(serrors.ErrConfiguration, err, "parsing pipeline")
	}
	return p, nil
}

// LoadPipeline reads and parses a pipeline file.
func LoadPipeline(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrConfiguration, err, "reading pipeline %s", path)
	}
	return ParsePipeline(data)
}

// ExamplePipeline is written by init-config: the usual normalization of a T1
// scan to a 1.5 mm template grid.
func ExamplePipeline() Pipeline {
	step := func(name, params string) Step {
		s := Step{Name: name}
		if params != "" {
			var doc yaml.Node
			_ = yaml.Unmarshal([]byte(params), &doc)
			s.Params = *doc.Content[0]
		}
		return s
	}
	return Pipeline{
		step(transform.ReorderToCanonicalName, ""),
		step(transform.SetPixelDimensionName, "{pixdim: [1, 0.75, 0.75], save_partial: true}"),
		step(transform.AffineToDiagonalName, ""),
		step(transform.ResliceName, "{dim: [121, 145, 121], pixdim: [1.5, 1.5, 1.5]}"),
	}
}

// SavePipeline writes p as YAML.
func SavePipeline(p Pipeline, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return serrors.Wrap(serrors.ErrConfiguration, err, "marshaling pipeline")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return serrors.Wrap(serrors.ErrConfiguration, err, "writing pipeline %s", path)
	}
	return nil
}
