package output

import (
	"encoding/json"

	"github.com/icdlens/icdlens/internal/core"
)

// JSONFormatter renders the page, provenance included, as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatPage(page *core.SearchPage) (string, error) {
	if page == nil {
		return "", nil
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(page, "", "  ")
	} else {
		data, err = json.Marshal(page)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
