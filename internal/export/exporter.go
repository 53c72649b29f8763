package export

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"activity-export/internal/common/errors"
	"activity-export/internal/common/logger"
	"activity-export/internal/common/marketo"
	"activity-export/internal/common/metrics"
)

// DefaultMaxAuthRetries bounds consecutive token refreshes for a single request.
const DefaultMaxAuthRetries = 3

// Source is the upstream activity API.
type Source interface {
	GetPagingToken(ctx context.Context, sinceDate string) (*marketo.PagingTokenResponse, error)
	GetActivities(ctx context.Context, nextPageToken, activityTypeIDs string) (*marketo.ActivityPage, error)
	RefreshCredentials(ctx context.Context) error
}

// RowWriter receives the header once, then rows in emission order.
type RowWriter interface {
	WriteHeader(ctx context.Context, columns []string) error
	WriteRow(ctx context.Context, row []string) error
	Close(ctx context.Context) error
}

// Checkpointer persists the continuation token between pages.
type Checkpointer interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, token string) error
	Delete(ctx context.Context, key string) error
}

// Options wires the collaborators of an Exporter. Source and Sink are required.
type Options struct {
	Source         Source
	Sink           RowWriter
	Checkpoints    Checkpointer
	CheckpointKey  string
	Resume         bool
	MaxAuthRetries int
	RunID          string
	Logger         logger.Logger
	Tracer         trace.Tracer
}

// RunSummary describes a finished or aborted run.
type RunSummary struct {
	RunID         string        `json:"runId"`
	SinceDate     string        `json:"sinceDate"`
	Columns       []string      `json:"columns"`
	Pages         int           `json:"pages"`
	Records       int           `json:"records"`
	Rows          int           `json:"rows"`
	Discarded     int           `json:"discarded"`
	Skipped       int           `json:"skipped"`
	AuthRefreshes int           `json:"authRefreshes"`
	Resumed       bool          `json:"resumed"`
	LastToken     string        `json:"lastToken,omitempty"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// Exporter drives one paginated export.
type Exporter struct {
	cfg    RunConfig
	opts   Options
	logger logger.Logger
	tracer trace.Tracer
}

func NewExporter(cfg RunConfig, opts Options) *Exporter {
	if opts.MaxAuthRetries <= 0 {
		opts.MaxAuthRetries = DefaultMaxAuthRetries
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("activity-export")
	}
	return &Exporter{
		cfg:    cfg,
		opts:   opts,
		logger: log,
		tracer: tracer,
	}
}

type run struct {
	*Exporter
	schema    Schema
	projector *Projector
	summary   *RunSummary
}

// Run writes the header, then fetches pages until the upstream reports no more
// results. The sink is closed on every path; the summary is returned even on error.
func (e *Exporter) Run(ctx context.Context) (summary *RunSummary, err error) {
	start := time.Now()
	schema := BuildSchema(e.cfg)
	summary = &RunSummary{RunID: e.opts.RunID, SinceDate: e.cfg.SinceDate, Columns: schema.Columns}

	ctx, span := e.tracer.Start(ctx, "export.run", trace.WithAttributes(
		attribute.String("export.since", e.cfg.SinceDate),
		attribute.String("export.activity_type_ids", schema.ActivityTypeIDsParam()),
	))
	defer func() {
		summary.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("export.pages", summary.Pages),
			attribute.Int("export.rows", summary.Rows),
		)
		if err != nil {
			summary.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	projector, err := NewProjector(schema, NewLeadState(schema.TrackedFields), e.cfg)
	if err != nil {
		return summary, errors.NewConfigInvalidError(err)
	}
	r := &run{Exporter: e, schema: schema, projector: projector, summary: summary}

	defer func() {
		if closeErr := e.opts.Sink.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err := e.opts.Sink.WriteHeader(ctx, schema.Columns); err != nil {
		return summary, err
	}

	e.logger.Info("Starting activity export", map[string]interface{}{
		"since":           e.cfg.SinceDate,
		"activityTypeIds": schema.ActivityTypeIDsParam(),
		"columns":         len(schema.Columns),
	})

	token, err := r.initialToken(ctx)
	if err != nil {
		return summary, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		more, next, err := r.page(ctx, token)
		if err != nil {
			return summary, err
		}
		token = next
		if !more {
			break
		}
	}

	if e.checkpointing() {
		if err := e.opts.Checkpoints.Delete(ctx, e.opts.CheckpointKey); err != nil {
			e.logger.WithError(err).Warn("Failed to clear checkpoint", nil)
		}
	}

	e.logger.Info("Activity export completed", map[string]interface{}{
		"pages":         summary.Pages,
		"records":       summary.Records,
		"rows":          summary.Rows,
		"discarded":     summary.Discarded,
		"skipped":       summary.Skipped,
		"authRefreshes": summary.AuthRefreshes,
		"duration":      time.Since(start).String(),
	})
	return summary, nil
}

func (e *Exporter) checkpointing() bool {
	return e.opts.Checkpoints != nil && e.opts.CheckpointKey != ""
}

func (r *run) initialToken(ctx context.Context) (string, error) {
	if r.opts.Resume && r.checkpointing() {
		token, found, err := r.opts.Checkpoints.Load(ctx, r.opts.CheckpointKey)
		if err != nil {
			return "", err
		}
		if found {
			r.summary.Resumed = true
			r.logger.Info("Resuming from checkpoint", map[string]interface{}{"key": r.opts.CheckpointKey})
			return token, nil
		}
	}

	resp, err := CallWithAuthRetry(ctx, r.authRetry(), "get paging token", func() (*marketo.PagingTokenResponse, bool, []errors.APIError, error) {
		resp, err := r.opts.Source.GetPagingToken(ctx, r.cfg.SinceDate)
		if err != nil {
			return nil, false, nil, err
		}
		return resp, resp.Success, resp.Errors, nil
	})
	if err != nil {
		return "", err
	}
	if resp.NextPageToken == "" {
		return "", errors.NewMalformedPageError("paging token response has no nextPageToken")
	}
	return resp.NextPageToken, nil
}

// page fetches and projects one page, returning the upstream moreResult flag and
// the token for the next request.
func (r *run) page(ctx context.Context, token string) (bool, string, error) {
	ctx, span := r.tracer.Start(ctx, "export.page", trace.WithAttributes(attribute.Int("export.page_number", r.summary.Pages+1)))
	defer span.End()

	fetchStart := time.Now()
	page, err := CallWithAuthRetry(ctx, r.authRetry(), "get activities", func() (*marketo.ActivityPage, bool, []errors.APIError, error) {
		page, err := r.opts.Source.GetActivities(ctx, token, r.schema.ActivityTypeIDsParam())
		if err != nil {
			return nil, false, nil, err
		}
		return page, page.Success, page.Errors, nil
	})
	metrics.PageFetchDuration.Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, token, err
	}
	if page.Result == nil {
		err := errors.NewMalformedPageError("successful response has no result section")
		span.SetStatus(codes.Error, err.Error())
		return false, token, err
	}

	r.summary.Pages++
	metrics.PagesFetched.Inc()
	next := page.NextPageToken

	for i := range page.Result {
		if err := r.record(ctx, &page.Result[i]); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, token, err
		}
	}

	r.summary.LastToken = next
	span.SetAttributes(
		attribute.Int("export.records", len(page.Result)),
		attribute.Bool("export.more_result", page.MoreResult),
	)
	r.logger.Debug("Processed activity page", map[string]interface{}{
		"page":       r.summary.Pages,
		"records":    len(page.Result),
		"moreResult": page.MoreResult,
	})

	if r.checkpointing() && page.MoreResult {
		if err := r.opts.Checkpoints.Save(ctx, r.opts.CheckpointKey, next); err != nil {
			return false, next, err
		}
	}
	return page.MoreResult, next, nil
}

func (r *run) record(ctx context.Context, rec *marketo.ActivityRecord) error {
	r.summary.Records++
	metrics.RecordsReceived.WithLabelValues(strconv.Itoa(rec.ActivityTypeID)).Inc()

	row, err := r.projector.Project(rec)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeUnsupportedActivityType) {
			r.summary.Skipped++
			metrics.RecordsDropped.WithLabelValues(metrics.ReasonUnsupportedType).Inc()
			r.logger.Warn("Skipping activity of unrequested type", map[string]interface{}{
				"activityId":     rec.ID,
				"activityTypeId": rec.ActivityTypeID,
			})
			return nil
		}
		return err
	}
	if row == nil {
		r.summary.Discarded++
		metrics.RecordsDropped.WithLabelValues(metrics.ReasonUntrackedField).Inc()
		return nil
	}

	if err := r.opts.Sink.WriteRow(ctx, row); err != nil {
		return err
	}
	r.summary.Rows++
	metrics.RowsWritten.Inc()
	return nil
}

func (r *run) authRetry() AuthRetry {
	return AuthRetry{
		Refresher:  r.opts.Source,
		MaxRetries: r.opts.MaxAuthRetries,
		Logger:     r.logger,
		OnRefresh:  func() { r.summary.AuthRefreshes++ },
	}
}
