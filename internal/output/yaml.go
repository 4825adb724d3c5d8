package output

import (
	"gopkg.in/yaml.v3"

	"github.com/keygate/keygate/internal/apikey"
)

// YAMLFormatter renders results as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatKeys(keys []apikey.Record) (string, error) {
	return marshalYAML(viewKeys(keys))
}

func (f *YAMLFormatter) FormatIssued(issued apikey.Issued) (string, error) {
	return marshalYAML(IssuedView{KeyView: ViewKey(issued.Record), Key: issued.Key})
}

func (f *YAMLFormatter) FormatLimits(limits Limits) (string, error) {
	return marshalYAML(limits)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
