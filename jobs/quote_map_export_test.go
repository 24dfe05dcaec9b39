package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/procura-app/procura/internal/archive"
	jobmetrics "github.com/procura-app/procura/internal/jobs"
	"github.com/procura-app/procura/internal/procurement"
)

type stubSource struct {
	items      []procurement.ProcurementQueueItem
	hydrated   int
	hydrateErr error
}

func (s *stubSource) Hydrate(ctx context.Context) error {
	s.hydrated++
	return s.hydrateErr
}

func (s *stubSource) QueueItems() []procurement.ProcurementQueueItem { return s.items }

type stubRenderer struct {
	pdfErr error
}

func (r *stubRenderer) RenderPDF(ctx context.Context, items []procurement.ProcurementQueueItem) ([]byte, error) {
	if r.pdfErr != nil {
		return nil, r.pdfErr
	}
	return []byte("%PDF-1.7"), nil
}

func (r *stubRenderer) RenderXLSX(ctx context.Context, items []procurement.ProcurementQueueItem) ([]byte, error) {
	return []byte("PK\x03\x04"), nil
}

func newExportJob(t *testing.T, source QueueSource, renderer procurement.QuoteMapRenderer) (*QuoteMapExportJob, archive.Store) {
	t.Helper()
	store, err := archive.NewFS(t.TempDir())
	require.NoError(t, err)
	job := NewQuoteMapExportJob(source, renderer, store, slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC) }
	return job, store
}

func sampleItems() []procurement.ProcurementQueueItem {
	return []procurement.ProcurementQueueItem{
		{ID: "#REQ-001-1", RequisitionID: "#REQ-001", Product: "Notebook", ApprovedQuantity: 5, TargetPrice: 2500, Status: procurement.QueueAwaitingQuote},
	}
}

func TestQuoteMapExportArchivesBothFormats(t *testing.T) {
	source := &stubSource{items: sampleItems()}
	job, store := newExportJob(t, source, &stubRenderer{})

	task, err := NewQuoteMapExportTask(QuoteMapExportPayload{RequestedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, source.hydrated)

	infos, err := store.List(context.Background(), "quote-maps/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "quote-maps/20260314T093000Z/mapa-comparativo.pdf", infos[0].Key)
	require.Equal(t, "application/pdf", infos[0].ContentType)
	require.Equal(t, "1", infos[0].Metadata["items"])
	require.Equal(t, "quote-maps/20260314T093000Z/mapa-comparativo.xlsx", infos[1].Key)
}

func TestQuoteMapExportSingleFormat(t *testing.T) {
	job, _ := newExportJob(t, &stubSource{items: sampleItems()}, &stubRenderer{})

	stored, err := job.Run(context.Background(), []string{"xlsx", "xlsx"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Contains(t, stored[0].Key, "mapa-comparativo.xlsx")
}

func TestQuoteMapExportFailures(t *testing.T) {
	ctx := context.Background()

	job, store := newExportJob(t, &stubSource{items: sampleItems()}, &stubRenderer{pdfErr: errors.New("gotenberg down")})
	task, err := NewQuoteMapExportTask(QuoteMapExportPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(ctx, task))
	infos, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, infos)

	job, _ = newExportJob(t, &stubSource{hydrateErr: errors.New("redis down")}, &stubRenderer{})
	require.Error(t, job.Handle(ctx, task))

	bad := asynq.NewTask(TaskQuoteMapExport, []byte("{"))
	require.ErrorIs(t, job.Handle(ctx, bad), asynq.SkipRetry)

	unknown, err := NewQuoteMapExportTask(QuoteMapExportPayload{Formats: []string{"docx"}})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(ctx, unknown), asynq.SkipRetry)

	var nilJob *QuoteMapExportJob
	require.Error(t, nilJob.Handle(ctx, task))
}

func TestClientEnqueuesQuoteMapExport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer client.Close()

	id, err := client.EnqueueQuoteMapExport(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Equal(t, []string{id}, pending)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)

	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskQuoteMapExport, Handler: func(context.Context, *asynq.Task) error { return nil }}},
	})
	require.NoError(t, err)
	require.NotNil(t, w)

	var nilWorker *Worker
	require.Error(t, nilWorker.Run(context.Background()))
}

func TestHandlerRoutes(t *testing.T) {
	store, err := archive.NewFS(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), archive.QuoteMapKey(time.Now(), "mapa-comparativo.pdf"), strings.NewReader("%PDF"), archive.PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)

	h := NewHandler(nil, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"failed":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/exports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []archive.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)

	noArchive := NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r = chi.NewRouter()
	r.Route("/jobs", noArchive.MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/exports", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
