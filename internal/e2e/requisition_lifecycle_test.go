package e2e

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/procura-app/procura/internal/archive"
	"github.com/procura-app/procura/internal/export"
	jobmetrics "github.com/procura-app/procura/internal/jobs"
	"github.com/procura-app/procura/internal/procurement"
	"github.com/procura-app/procura/internal/shared"
	"github.com/procura-app/procura/internal/snapshot"
	"github.com/procura-app/procura/jobs"
	"github.com/procura-app/procura/report"
)

type pdfStub struct {
	html string
}

func (p *pdfStub) RenderHTML(ctx context.Context, html string, opts report.PageOptions) ([]byte, error) {
	p.html = html
	return []byte("%PDF-1.7"), nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequisitionLifecycleSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	clock := func() time.Time { return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC) }

	backend, err := snapshot.NewSQLite(dbPath)
	require.NoError(t, err)
	trail := shared.NewAuditTrail(0)
	svc := procurement.NewService(backend, procurement.WithLogger(discard()), procurement.WithAudit(trail), procurement.WithClock(clock))
	require.NoError(t, svc.Hydrate(ctx))

	forecast := procurement.BuildForecast(procurement.ForecastInput{
		PeriodStart: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		Responsible: "Tesouraria",
		Amount:      50000,
	})
	forecast.Status = procurement.ForecastConfirmed
	require.NoError(t, svc.AddForecast(ctx, forecast))
	require.Equal(t, 50000.0, svc.GlobalAvailability())

	req, err := svc.AddRequisition(ctx, procurement.NewRequisition{
		Title:         "Equipamentos TI",
		Justification: "Novos colaboradores",
		CostCenter:    "ti",
		Items: []procurement.RequisitionLineItem{
			{Product: "Notebook", Quantity: 4, UnitPrice: 4500},
			{Product: "Monitor", Quantity: 4, UnitPrice: 1200},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "#REQ-001", req.ID)
	require.Equal(t, 22800.0, req.TotalValue)

	_, err = svc.BeginReview(ctx, req.ID)
	require.NoError(t, err)

	items, summary, err := svc.ApprovalPreview(req.ID, map[string]float64{"2": 0})
	require.NoError(t, err)
	require.Equal(t, 18000.0, summary.ApprovedTotal)
	require.Equal(t, 4800.0, summary.Savings)
	require.False(t, summary.HasDeficit)

	approved, err := svc.ApproveRequisition(ctx, req.ID, items)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusApproved, approved.Status)
	require.Len(t, svc.QueueItemsFor(req.ID), 2)

	notebook := procurement.QueueItemID(req.ID, 1)
	_, err = svc.StartQuotation(ctx, notebook)
	require.NoError(t, err)
	quoted, err := svc.RegisterQuote(ctx, notebook, []procurement.Quote{
		{Supplier: "Dell", UnitPrice: 4300, LeadTimeDays: 10},
		{Supplier: "Lenovo", UnitPrice: 4100, LeadTimeDays: 15},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, procurement.QueueProcessingOrder, quoted.Status)
	require.Equal(t, "Lenovo", quoted.Supplier)

	_, err = svc.FinalizeQuotation(ctx, req.ID)
	require.NoError(t, err)
	order, err := svc.RatifyOrder(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "#OC-2026/001", order.ID)
	require.Equal(t, "Lenovo", order.Supplier)
	require.Len(t, order.Items, 1)

	history, err := trail.List(ctx, procurement.EntityRequisition, req.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, entry := range history {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []string{
		"REQUISITION_CREATE",
		"REQUISITION_REVIEW",
		"REQUISITION_APPROVE",
		"REQUISITION_FINALIZE",
		"REQUISITION_RATIFY",
	}, actions)

	svc.Close()
	require.NoError(t, backend.Close())

	// A fresh process sees the same state.
	reopened, err := snapshot.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	restarted := procurement.NewService(reopened, procurement.WithLogger(discard()))
	require.NoError(t, restarted.Hydrate(ctx))

	stored, err := restarted.Requisition(req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusRatified, stored.Status)
	require.Equal(t, procurement.QueueKPIs{OrdersIssued: 1, Cancelled: 1}, restarted.QueueKPIs())
	require.Equal(t, "#REQ-002", restarted.NextRequisitionID())

	store, err := archive.NewFS(t.TempDir())
	require.NoError(t, err)
	pdf := &pdfStub{}
	job := jobs.NewQuoteMapExportJob(restarted, export.NewRenderer(pdf, clock), store, discard(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	docs, err := job.Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Contains(t, pdf.html, "Notebook")
	require.Contains(t, pdf.html, "Gerado em: 14/03/2026 09:30")

	var xlsx bytes.Buffer
	_, rc, err := store.Get(ctx, docs[1].Key)
	require.NoError(t, err)
	_, err = io.Copy(&xlsx, rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	book, err := excelize.OpenReader(&xlsx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = book.Close() })
	require.NotEmpty(t, book.GetSheetList())
}
