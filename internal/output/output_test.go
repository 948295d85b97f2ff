package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/icdlens/icdlens/internal/core"
)

func samplePage() *core.SearchPage {
	return &core.SearchPage{
		Query: "diabetes",
		Results: []core.SearchResult{
			{Code: "E11.9", Description: "Diabetes mellitus tipo 2 sin complicaciones"},
			{Code: "E10.9", Description: "Diabetes mellitus tipo 1 | sin complicaciones"},
		},
		Total: 57,
		Limit: 2,
		Provenance: &core.Provenance{
			AttemptID:   "a1",
			RequestedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
			ResolvedAt:  time.Date(2026, 10, 1, 12, 0, 1, 0, time.UTC),
			Endpoint:    core.EndpointPrimary,
			Mode:        core.LookupFreeText,
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":         FormatTable,
		"table":    FormatTable,
		"JSON":     FormatJSON,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"yml":      FormatYAML,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatPage(samplePage())
	require.NoError(t, err)
	require.Contains(t, rendered, "E11.9")
	require.Contains(t, rendered, "2 de 57 resultados")
	require.Contains(t, rendered, "--limit 4")
	require.Contains(t, rendered, "primary")
}

func TestTableFormatterError(t *testing.T) {
	page := &core.SearchPage{Query: "asma", Limit: 20, Error: "No se pudo conectar al servicio. Verifica tu conexión."}
	rendered, err := (&TableFormatter{}).FormatPage(page)
	require.NoError(t, err)
	require.Contains(t, rendered, "Verifica tu conexión")
}

func TestMarkdownFormatterEscapesPipes(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatPage(samplePage())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, "## CIE-10: diabetes"))
	require.Contains(t, rendered, "tipo 1 \\| sin")
	require.Contains(t, rendered, "| E11.9 |")
}

func TestMarkdownFormatterEmpty(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatPage(&core.SearchPage{Query: "zzz", Limit: 20})
	require.NoError(t, err)
	require.NotContains(t, rendered, "| Código |")
	require.Contains(t, rendered, "Sin resultados")
}

func TestJSONFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatPage(samplePage())
	require.NoError(t, err)

	var decoded core.SearchPage
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, 57, decoded.Total)
	require.Equal(t, core.EndpointPrimary, decoded.Provenance.Endpoint)
}

func TestYAMLFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatYAML).FormatPage(samplePage())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, "diabetes", decoded["query"])
	require.Equal(t, 57, decoded["total"])
}

func TestNilPage(t *testing.T) {
	for _, f := range []Format{FormatTable, FormatJSON, FormatMarkdown, FormatYAML} {
		rendered, err := NewFormatter(f).FormatPage(nil)
		require.NoError(t, err)
		require.Empty(t, rendered)
	}
}
