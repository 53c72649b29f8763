package cli

import (
	"github.com/google/uuid"

	"activity-export/internal/common/config"
	"activity-export/internal/common/errors"
	commonhttp "activity-export/internal/common/http"
	"activity-export/internal/common/logger"
	"activity-export/internal/common/marketo"
	"activity-export/internal/common/observability"
)

// app carries what every command needs after configuration is loaded.
type app struct {
	cfg   *config.Config
	runID string
	log   logger.Logger
	obs   *observability.Observability
}

func (o *RootOptions) bootstrap() (*app, error) {
	if o.Debug {
		o.viper.Set("logging.level", "debug")
	}

	var (
		cfg *config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.LoadFromFile(o.viper, o.ConfigFile)
	} else {
		cfg, err = config.Load(o.viper)
	}
	if err != nil {
		return nil, errors.NewConfigInvalidError(err)
	}

	runID := uuid.NewString()
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format).WithFields(map[string]interface{}{
		"runId": runID,
	})

	obs := observability.New(cfg.App.Name, observability.Options{
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Registerer:     o.Registerer,
	})

	return &app{cfg: cfg, runID: runID, log: log, obs: obs}, nil
}

func (a *app) marketoClient() *marketo.Client {
	httpClient := commonhttp.NewClient(
		config.GetDuration(a.cfg.Marketo.Timeout),
		commonhttp.WithTracer(a.obs.Tracer()),
		commonhttp.WithLogger(a.log),
	)
	tokens := marketo.NewClientCredentials(
		a.cfg.Marketo.InstanceURL,
		a.cfg.Marketo.ClientID,
		a.cfg.Marketo.ClientSecret,
		httpClient.HTTPClient(),
	)
	return marketo.NewClient(a.cfg.Marketo.InstanceURL, httpClient, tokens, a.log)
}

func (a *app) close() {
	a.obs.Shutdown()
	_ = a.log.Sync()
}
