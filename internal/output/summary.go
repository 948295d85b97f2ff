package output

import (
	"fmt"

	"github.com/icdlens/icdlens/internal/core"
)

// summaryLine describes how much of the upstream total is shown.
func summaryLine(page *core.SearchPage) string {
	shown := len(page.Results)
	switch {
	case page.Error != "":
		return page.Error
	case shown == 0:
		return "Sin resultados"
	case page.Total > shown:
		line := fmt.Sprintf("%d de %d resultados", shown, page.Total)
		if page.CanLoadMore() {
			line += fmt.Sprintf(" (usa --limit %d para ver más)", page.Limit*2)
		}
		return line
	default:
		return fmt.Sprintf("%d resultados", shown)
	}
}

func endpointLabel(page *core.SearchPage) string {
	if page.Provenance == nil || page.Provenance.Endpoint == "" {
		return ""
	}
	label := string(page.Provenance.Endpoint)
	if page.Provenance.Mode != "" && page.Provenance.Mode != core.LookupFreeText {
		label += " · " + string(page.Provenance.Mode)
	}
	return label
}
