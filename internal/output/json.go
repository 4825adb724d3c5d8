package output

import (
	"encoding/json"

	"github.com/keygate/keygate/internal/apikey"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatKeys(keys []apikey.Record) (string, error) {
	return f.marshal(viewKeys(keys))
}

func (f *JSONFormatter) FormatIssued(issued apikey.Issued) (string, error) {
	return f.marshal(IssuedView{KeyView: ViewKey(issued.Record), Key: issued.Key})
}

func (f *JSONFormatter) FormatLimits(limits Limits) (string, error) {
	return f.marshal(limits)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
