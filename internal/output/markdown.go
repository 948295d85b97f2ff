package output

import (
	"fmt"
	"strings"

	"github.com/icdlens/icdlens/internal/core"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatPage(page *core.SearchPage) (string, error) {
	if page == nil {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## CIE-10: %s\n\n", escapeMarkdownCell(page.Query))

	if len(page.Results) > 0 {
		sb.WriteString("| Código | Descripción |\n")
		sb.WriteString("|--------|-------------|\n")
		for _, r := range page.Results {
			fmt.Fprintf(&sb, "| %s | %s |\n", escapeMarkdownCell(r.Code), escapeMarkdownCell(r.Description))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "_%s_\n", summaryLine(page))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
