package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuoteMapExport renders the comparative quote map and archives it.
	TaskQuoteMapExport = "procurement:quote-map-export"
)

// QuoteMapExportPayload describes a quote map export request.
type QuoteMapExportPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	Formats     []string  `json:"formats,omitempty"`
}

// NewQuoteMapExportTask constructs an Asynq task.
func NewQuoteMapExportTask(payload QuoteMapExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteMapExport, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
