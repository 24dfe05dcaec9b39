package export

import (
	"bytes"
	"html/template"

	"github.com/procura-app/procura/web"
)

var quoteMapTemplate = template.Must(template.New("quote_map.html").Funcs(template.FuncMap{
	"currency": FormatCurrency,
	"quantity": FormatQuantity,
	"status":   StatusLabel,
}).ParseFS(web.Templates, "templates/reports/quote_map.html"))

// RenderHTML produces the printable quote map page.
func RenderHTML(m QuoteMap) (string, error) {
	var buf bytes.Buffer
	err := quoteMapTemplate.Execute(&buf, map[string]any{
		"Title":   Title,
		"Columns": Columns,
		"Map":     m,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
