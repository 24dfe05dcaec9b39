package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/procura-app/procura/internal/archive"
	"github.com/procura-app/procura/internal/export"
	jobmetrics "github.com/procura-app/procura/internal/jobs"
	"github.com/procura-app/procura/internal/procurement"
)

// JobQuoteMapExport is the metrics label of the quote map export job.
const JobQuoteMapExport = "quote_map_export"

const (
	formatPDF  = "pdf"
	formatXLSX = "xlsx"
)

// QueueSource reloads and exposes the procurement queue.
type QueueSource interface {
	Hydrate(ctx context.Context) error
	QueueItems() []procurement.ProcurementQueueItem
}

// QuoteMapExportJob renders the quote map in every requested format and
// writes the documents to the archive.
type QuoteMapExportJob struct {
	Source   QueueSource
	Renderer procurement.QuoteMapRenderer
	Archive  archive.Store
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewQuoteMapExportJob initialises the export handler.
func NewQuoteMapExportJob(source QueueSource, renderer procurement.QuoteMapRenderer, store archive.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuoteMapExportJob {
	return &QuoteMapExportJob{
		Source:   source,
		Renderer: renderer,
		Archive:  store,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type document struct {
	format      string
	filename    string
	contentType string
	data        []byte
}

// Handle executes one export.
func (j *QuoteMapExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Renderer == nil || j.Archive == nil {
		return errors.New("quote map export: handler not configured")
	}
	var payload QuoteMapExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("quote map export: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	formats, err := normalizeFormats(payload.Formats)
	if err != nil {
		return fmt.Errorf("quote map export: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(JobQuoteMapExport)
	_, err = j.Run(ctx, formats)
	return tracker.End(err)
}

// Run renders and archives the quote map, returning the stored objects.
func (j *QuoteMapExportJob) Run(ctx context.Context, formats []string) ([]archive.Info, error) {
	logger := j.logger()
	if err := j.Source.Hydrate(ctx); err != nil {
		logger.Error("quote map export: reload state", slog.Any("error", err))
		return nil, err
	}
	items := j.Source.QueueItems()
	generatedAt := j.now()

	docs := make([]document, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		g.Go(func() error {
			doc, err := j.render(gctx, format, items)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("quote map export: render", slog.Any("error", err))
		return nil, err
	}

	stored := make([]archive.Info, 0, len(docs))
	for _, doc := range docs {
		key := archive.QuoteMapKey(generatedAt, doc.filename)
		info, err := j.Archive.Put(ctx, key, bytes.NewReader(doc.data), archive.PutOptions{
			ContentType: doc.contentType,
			Metadata: map[string]string{
				"items":        strconv.Itoa(len(items)),
				"generated-at": generatedAt.Format(time.RFC3339),
			},
		})
		if err != nil {
			logger.Error("quote map export: archive", slog.String("key", key), slog.Any("error", err))
			return nil, err
		}
		j.Metrics.AddDocuments(doc.format, 1)
		stored = append(stored, info)
	}
	logger.Info("quote map exported",
		slog.Int("items", len(items)),
		slog.Int("documents", len(stored)),
		slog.String("driver", string(j.Archive.Driver())))
	return stored, nil
}

func (j *QuoteMapExportJob) render(ctx context.Context, format string, items []procurement.ProcurementQueueItem) (document, error) {
	switch format {
	case formatPDF:
		data, err := j.Renderer.RenderPDF(ctx, items)
		if err != nil {
			return document{}, err
		}
		return document{format: format, filename: export.PDFFilename, contentType: export.PDFContentType, data: data}, nil
	case formatXLSX:
		data, err := j.Renderer.RenderXLSX(ctx, items)
		if err != nil {
			return document{}, err
		}
		return document{format: format, filename: export.XLSXFilename, contentType: export.XLSXContentType, data: data}, nil
	default:
		return document{}, fmt.Errorf("unsupported format %q", format)
	}
}

func normalizeFormats(formats []string) ([]string, error) {
	if len(formats) == 0 {
		return []string{formatPDF, formatXLSX}, nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		if f != formatPDF && f != formatXLSX {
			return nil, fmt.Errorf("unsupported format %q", f)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func (j *QuoteMapExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", JobQuoteMapExport))
	}
	return slog.Default()
}

func (j *QuoteMapExportJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
