package output

import (
	"gopkg.in/yaml.v3"

	"github.com/icdlens/icdlens/internal/core"
)

type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatPage(page *core.SearchPage) (string, error) {
	if page == nil {
		return "", nil
	}
	data, err := yaml.Marshal(page)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
