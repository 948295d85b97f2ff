package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/icdlens/icdlens/internal/core"
)

// TableFormatter renders results as a rounded ASCII table.
type TableFormatter struct {
	// MaxDescription wraps descriptions longer than this; zero means 72.
	MaxDescription int
}

func (f *TableFormatter) FormatPage(page *core.SearchPage) (string, error) {
	if page == nil {
		return "", nil
	}

	width := f.MaxDescription
	if width <= 0 {
		width = 72
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	if page.Query != "" {
		t.SetTitle(page.Query)
	}
	t.AppendHeader(table.Row{"Código", "Descripción"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: width, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range page.Results {
		t.AppendRow(table.Row{r.Code, r.Description})
	}

	t.AppendFooter(table.Row{endpointLabel(page), summaryLine(page)})
	return t.Render(), nil
}
