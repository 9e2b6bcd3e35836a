package typecodec

import "gopkg.in/yaml.v3"

type yamlFormat struct{}

// YAML returns a format whose payloads are yaml.Node trees, so a document
// can carry envelopes inline and still be edited by hand.
func YAML() Format[yaml.Node] { return yamlFormat{} }

func (yamlFormat) Name() string { return "yaml" }

func (yamlFormat) Encode(v any) (yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return yaml.Node{}, err
	}
	return n, nil
}

func (yamlFormat) Decode(in yaml.Node, dst any) error {
	if in.Kind == 0 {
		return ErrTruncatedData
	}
	if in.Kind == yaml.ScalarNode && in.ShortTag() == "!!null" && !acceptsNull(dst) {
		return nullPayload(dst)
	}
	return in.Decode(dst)
}
