// Package export renders the comparative quote map of the procurement queue.
package export

import (
	"time"

	"github.com/procura-app/procura/internal/procurement"
)

// Document names and titles.
const (
	Title        = "Mapa Comparativo de Cotações"
	PDFFilename  = "mapa-comparativo.pdf"
	XLSXFilename = "mapa-comparativo.xlsx"

	PDFContentType  = "application/pdf"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Columns lists the table header of the quote map.
var Columns = []string{"Produto", "Quantidade", "Preço Alvo", "Status"}

// Row is one queue item as printed on the quote map.
type Row struct {
	RequisitionID string
	Product       string
	Quantity      float64
	TargetPrice   float64
	Status        procurement.QueueStatus
}

// QuoteMap is the data behind both the PDF and the XLSX rendition.
type QuoteMap struct {
	GeneratedAt time.Time
	Rows        []Row
}

// BuildQuoteMap copies the printable fields of the queue items.
func BuildQuoteMap(items []procurement.ProcurementQueueItem, now time.Time) QuoteMap {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, Row{
			RequisitionID: item.RequisitionID,
			Product:       item.Product,
			Quantity:      item.ApprovedQuantity,
			TargetPrice:   item.TargetPrice,
			Status:        item.Status,
		})
	}
	return QuoteMap{GeneratedAt: now, Rows: rows}
}

// GeneratedLine is the generation date line under the title.
func (m QuoteMap) GeneratedLine() string {
	return "Gerado em: " + m.GeneratedAt.Format("02/01/2006 15:04")
}
