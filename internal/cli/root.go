package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"activity-export/internal/common/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Debug      bool

	// Registerer receives otel metrics. Nil means the default registry.
	Registerer prometheus.Registerer

	viper *viper.Viper
}

// NewRootCommand creates the root command for the exporter CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions lets tests inject a metrics registry.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	opts.viper = config.NewViper()

	cmd := &cobra.Command{
		Use:   "activity-export",
		Short: "Export lead activities as delimited rows",
		Long: `Export lead activities from a Marketo instance.

Each activity becomes one row carrying the last known value of every tracked
lead field at the time the activity happened.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "path to a config file (default ./configs/config.yaml)")
	flags.StringP("instance", "i", "", "instance URL, e.g. https://123-ABC-456.mktorest.com")
	flags.StringP("client-id", "d", "", "API client id")
	flags.StringP("client-secret", "s", "", "API client secret")
	flags.BoolVarP(&opts.Debug, "debug", "g", false, "debug logging")

	_ = opts.viper.BindPFlag("marketo.instance_url", flags.Lookup("instance"))
	_ = opts.viper.BindPFlag("marketo.client_id", flags.Lookup("client-id"))
	_ = opts.viper.BindPFlag("marketo.client_secret", flags.Lookup("client-secret"))

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTypesCommand(opts))

	return cmd
}
