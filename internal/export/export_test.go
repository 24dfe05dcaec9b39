package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/procura-app/procura/internal/procurement"
	"github.com/procura-app/procura/report"
)

var generatedAt = time.Date(2026, time.May, 4, 16, 45, 0, 0, time.UTC)

func sampleItems() []procurement.ProcurementQueueItem {
	return []procurement.ProcurementQueueItem{
		{ID: "#REQ-001-1", RequisitionID: "#REQ-001", Product: "Notebook <i7>", ApprovedQuantity: 5, TargetPrice: 2500, Status: procurement.QueueAwaitingQuote},
		{ID: "#REQ-001-2", RequisitionID: "#REQ-001", Product: "Monitor", ApprovedQuantity: 0, TargetPrice: 1800, Status: procurement.QueueCancelled},
	}
}

type fakePDF struct {
	html string
	opts report.PageOptions
	err  error
}

func (f *fakePDF) RenderHTML(ctx context.Context, html string, opts report.PageOptions) ([]byte, error) {
	f.html = html
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF"), nil
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "R$ 2.500,00", FormatCurrency(2500))
	require.Equal(t, "R$ 1.250.000,00", FormatCurrency(1250000))
	require.Equal(t, "5", FormatQuantity(5))
	require.Equal(t, "Aguardando Cotação", StatusLabel(procurement.QueueAwaitingQuote))
	require.Equal(t, "desconhecido", StatusLabel("desconhecido"))
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(BuildQuoteMap(sampleItems(), generatedAt))
	require.NoError(t, err)
	require.Contains(t, html, "<h1>Mapa Comparativo de Cotações</h1>")
	require.Contains(t, html, "Gerado em: 04/05/2026 16:45")
	for _, col := range Columns {
		require.Contains(t, html, "<th>"+col+"</th>")
	}
	require.Contains(t, html, "Notebook &lt;i7&gt;")
	require.Contains(t, html, "R$ 2.500,00")
	require.Contains(t, html, "Cancelado")
}

func TestRenderHTMLEmptyQueue(t *testing.T) {
	html, err := RenderHTML(BuildQuoteMap(nil, generatedAt))
	require.NoError(t, err)
	require.Contains(t, html, "Nenhum item na fila de compras.")
}

func TestRendererPDF(t *testing.T) {
	client := &fakePDF{}
	r := NewRenderer(client, func() time.Time { return generatedAt })

	pdf, err := r.RenderPDF(context.Background(), sampleItems())
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(pdf))
	require.True(t, client.opts.Landscape)
	require.Contains(t, client.html, "Monitor")

	client.err = errors.New("gotenberg unavailable")
	_, err = r.RenderPDF(context.Background(), sampleItems())
	require.ErrorContains(t, err, "gotenberg unavailable")
}

func TestRendererXLSX(t *testing.T) {
	r := NewRenderer(nil, func() time.Time { return generatedAt })
	data, err := r.RenderXLSX(context.Background(), sampleItems())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{sheetName}, f.GetSheetList())
	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	require.Equal(t, Title, title)

	header, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Equal(t, Columns, header[headerRow-1])

	product, err := f.GetCellValue(sheetName, "A5")
	require.NoError(t, err)
	require.Equal(t, "Notebook <i7>", product)
	price, err := f.GetCellValue(sheetName, "C5", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Equal(t, "2500", price)
	status, err := f.GetCellValue(sheetName, "D6")
	require.NoError(t, err)
	require.Equal(t, "Cancelado", status)
}
