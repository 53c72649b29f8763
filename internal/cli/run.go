package cli

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"activity-export/internal/checkpoint"
	commonaws "activity-export/internal/common/aws"
	"activity-export/internal/common/config"
	"activity-export/internal/common/database"
	"activity-export/internal/common/errors"
	"activity-export/internal/export"
	"activity-export/internal/notify"
	"activity-export/internal/sink"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	NotUseJST bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export activities since a date",
		Long: `Fetch every New Lead and Change Data Value activity since the given date,
optionally with email and web activity, and write one row per activity.

Example:
  activity-export run -i https://123-ABC-456.mktorest.com -d ID -s SECRET -c 2015-04-01 -o out.csv
  activity-export run -c 2015-04-01 -m -w -f Company,Title --checkpoint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringP("since", "c", "", "export activities since this date (YYYY-MM-DD)")
	flags.StringP("output", "o", "", "output file (default stdout)")
	flags.StringSliceP("change-data-fields", "f", nil, "additional lead fields to track")
	flags.BoolP("web", "w", false, "include Visit Webpage and Click Link activities")
	flags.BoolP("mail", "m", false, "include Open Email and Click Email activities")
	flags.BoolVarP(&opts.NotUseJST, "not-use-jst", "j", false, "keep activity dates in UTC")
	flags.String("timezone", "", "zone activity dates are converted to (default Asia/Tokyo)")
	flags.String("delimiter", "", "output field delimiter (default ,)")
	flags.Bool("resume", false, "continue from the last saved checkpoint")
	flags.Bool("checkpoint", false, "save the continuation token after every page")

	v := opts.viper
	_ = v.BindPFlag("export.since", flags.Lookup("since"))
	_ = v.BindPFlag("export.output", flags.Lookup("output"))
	_ = v.BindPFlag("export.custom_fields", flags.Lookup("change-data-fields"))
	_ = v.BindPFlag("export.include_web_activity", flags.Lookup("web"))
	_ = v.BindPFlag("export.include_mail_activity", flags.Lookup("mail"))
	_ = v.BindPFlag("export.timezone", flags.Lookup("timezone"))
	_ = v.BindPFlag("export.delimiter", flags.Lookup("delimiter"))
	_ = v.BindPFlag("export.resume", flags.Lookup("resume"))
	_ = v.BindPFlag("checkpoint.enabled", flags.Lookup("checkpoint"))

	return cmd
}

func runExport(ctx context.Context, opts *RunOptions, stdout io.Writer) (err error) {
	if opts.NotUseJST {
		opts.viper.Set("export.convert_timezone", false)
	}

	a, err := opts.bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if err := config.ValidateExport(cfg); err != nil {
		return errors.NewConfigInvalidError(err)
	}

	runCfg := export.RunConfig{
		TrackedFields:          cfg.Export.AllTrackedFields(),
		IncludeMailActivity:    cfg.Export.IncludeMailActivity,
		IncludeWebActivity:     cfg.Export.IncludeWebActivity,
		ConvertToLocalTimezone: cfg.Export.ConvertTimezone,
		SinceDate:              cfg.Export.Since,
	}
	if runCfg.ConvertToLocalTimezone {
		// validated above
		runCfg.Location, _ = time.LoadLocation(cfg.Export.Timezone)
	}

	stopMetrics := serveMetrics(cfg.Metrics.ListenAddress, a)
	defer stopMetrics()

	exportOpts := export.Options{
		MaxAuthRetries: cfg.Marketo.MaxAuthRetries,
		RunID:          a.runID,
		Logger:         a.log,
		Tracer:         a.obs.Tracer(),
		Resume:         cfg.Export.Resume,
	}
	resuming := false
	if cfg.Checkpoint.Enabled || cfg.Export.Resume {
		rc := database.NewRedis(cfg.Database.Redis)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return errors.NewCheckpointError("connect", err)
		}
		store := checkpoint.NewRedisStore(rc.Client, time.Duration(cfg.Checkpoint.TTL)*time.Second)
		exportOpts.Checkpoints = store
		exportOpts.CheckpointKey = checkpoint.Key(cfg.Checkpoint.KeyPrefix, cfg.Marketo.Host(), cfg.Export.Since)

		if cfg.Export.Resume {
			if _, resuming, err = store.Load(ctx, exportOpts.CheckpointKey); err != nil {
				return err
			}
		}
	}

	out, closers, err := openSinks(ctx, a, stdout, resuming)
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()
	if err != nil {
		return err
	}
	exportOpts.Source = a.marketoClient()
	exportOpts.Sink = out

	summary, err := export.NewExporter(runCfg, exportOpts).Run(ctx)

	status := notify.StatusSucceeded
	if err != nil {
		status = notify.StatusFailed
		a.log.WithError(err).Error("Activity export failed", map[string]interface{}{
			"code": string(errors.CodeOf(err)),
		})
	}
	a.obs.RecordRun(ctx, summary.Duration, status)
	notifyRunFinished(ctx, a, summary)

	return err
}

// openSinks returns the combined sink plus cleanup functions for the connections
// it opened. Cleanups are returned even when an error occurs part way. When
// resuming, an output file is appended to instead of truncated.
func openSinks(ctx context.Context, a *app, stdout io.Writer, resuming bool) (sink.Sink, []func() error, error) {
	cfg := a.cfg
	delimiter, _ := utf8.DecodeRuneInString(cfg.Export.Delimiter)

	var (
		sinks   []sink.Sink
		closers []func() error
		csvSink *sink.CSV
		err     error
	)
	switch {
	case cfg.Export.Output == "" || cfg.Export.Output == "-":
		csvSink = sink.NewCSV(stdout, delimiter)
	case resuming:
		csvSink, err = sink.AppendCSV(cfg.Export.Output, delimiter)
	default:
		csvSink, err = sink.OpenCSV(cfg.Export.Output, delimiter)
	}
	if err != nil {
		return nil, closers, err
	}
	sinks = append(sinks, csvSink)

	if cfg.Database.Postgres.Enabled {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, closers, errors.NewSinkWriteError("postgres", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Ping(ctx); err != nil {
			return nil, closers, errors.NewSinkWriteError("postgres", err)
		}
		sinks = append(sinks, sink.NewPostgres(pg.DB, cfg.Database.Postgres.Table, a.runID))
	}

	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, closers, errors.NewSinkWriteError("elasticsearch", err)
		}
		if err := es.Ping(ctx); err != nil {
			return nil, closers, errors.NewSinkWriteError("elasticsearch", err)
		}
		sinks = append(sinks, sink.NewElasticsearch(es.Client, cfg.Database.Elasticsearch.Index, a.runID, cfg.Database.Elasticsearch.BulkSize))
	}

	if len(sinks) == 1 {
		return sinks[0], closers, nil
	}
	return sink.NewMulti(sinks...), closers, nil
}

func serveMetrics(addr string, a *app) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("Metrics server listening", map[string]interface{}{"address": addr})
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.log.Warn("Metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

// notifyRunFinished publishes the summary when notifications are enabled.
// Publishing never changes the outcome of the run.
func notifyRunFinished(ctx context.Context, a *app, summary *export.RunSummary) {
	sns := a.cfg.Notifications.SNS
	if !sns.Enabled {
		return
	}
	client, err := commonaws.NewSNSClient(ctx, sns.Region)
	if err != nil {
		a.log.WithError(err).Warn("Failed to create SNS client", nil)
		return
	}
	if err := notify.NewSNSNotifier(client, sns.TopicARN, a.log).RunFinished(ctx, summary); err != nil {
		a.log.WithError(err).Warn("Failed to publish run summary", nil)
	}
}
