package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"activity-export/internal/common/errors"
	"activity-export/internal/common/logger"
	"activity-export/internal/common/marketo"
	"activity-export/internal/export"
	"activity-export/pkg/registry"
)

// TypesOptions holds flags for the types command.
type TypesOptions struct {
	*RootOptions
	RegistryOut string
}

// NewTypesCommand creates the types command.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TypesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the activity types defined on the instance",
		Long: `List every activity type defined on the instance as id, name and whether
the exporter can project it.

Example:
  activity-export types --registry-out configs/activity-types.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTypes(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.RegistryOut, "registry-out", "", "also write a registry snapshot to this path")

	return cmd
}

func listTypes(ctx context.Context, opts *TypesOptions, out io.Writer) error {
	a, err := opts.bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := fetchActivityTypes(ctx, a.marketoClient(), a.cfg.Marketo.MaxAuthRetries, a.log)
	if err != nil {
		return err
	}

	reg := &registry.ActivityRegistry{
		Version:     registry.CurrentVersion,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Instance:    a.cfg.Marketo.Host(),
	}
	for _, t := range resp.Result {
		supported := export.ActivityType(t.ID).Known()
		if _, err := fmt.Fprintf(out, "%d\t%s\t%t\n", t.ID, t.Name, supported); err != nil {
			return err
		}

		activity := registry.Activity{ID: t.ID, Name: t.Name, Description: t.Description, Supported: supported}
		if t.PrimaryAttribute != nil {
			activity.PrimaryAttribute = t.PrimaryAttribute.Name
		}
		reg.Activities = append(reg.Activities, activity)
	}

	if opts.RegistryOut == "" {
		return nil
	}

	previous, err := registry.LoadRegistry(opts.RegistryOut)
	switch {
	case err == nil:
		logRegistryChanges(a.log, diffRegistry(previous, reg))
	case !os.IsNotExist(err):
		a.log.WithError(err).Warn("Ignoring unreadable registry snapshot", map[string]interface{}{"path": opts.RegistryOut})
	}

	if err := registry.SaveRegistry(opts.RegistryOut, reg); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	a.log.Info("Registry snapshot written", map[string]interface{}{
		"path":       opts.RegistryOut,
		"activities": len(reg.Activities),
		"supported":  len(reg.Supported()),
	})
	return nil
}

// activityTypesSource is the part of the Marketo client the types command uses.
type activityTypesSource interface {
	GetActivityTypes(ctx context.Context) (*marketo.ActivityTypesResponse, error)
	RefreshCredentials(ctx context.Context) error
}

// fetchActivityTypes applies the same expired-token retry bound as the export run.
func fetchActivityTypes(ctx context.Context, client activityTypesSource, maxAuthRetries int, log logger.Logger) (*marketo.ActivityTypesResponse, error) {
	policy := export.AuthRetry{Refresher: client, MaxRetries: maxAuthRetries, Logger: log}
	return export.CallWithAuthRetry(ctx, policy, "get activity types", func() (*marketo.ActivityTypesResponse, bool, []errors.APIError, error) {
		resp, err := client.GetActivityTypes(ctx)
		if err != nil {
			return nil, false, nil, err
		}
		return resp, resp.Success, resp.Errors, nil
	})
}

// registryChanges lists how the instance's activity types moved between snapshots.
type registryChanges struct {
	Added   []registry.Activity
	Removed []registry.Activity
	Renamed []registry.Activity
}

func diffRegistry(previous, current *registry.ActivityRegistry) registryChanges {
	var changes registryChanges
	for _, a := range current.Activities {
		old, ok := previous.Find(a.ID)
		switch {
		case !ok:
			changes.Added = append(changes.Added, a)
		case old.Name != a.Name:
			changes.Renamed = append(changes.Renamed, a)
		}
	}
	for _, a := range previous.Activities {
		if _, ok := current.Find(a.ID); !ok {
			changes.Removed = append(changes.Removed, a)
		}
	}
	return changes
}

func logRegistryChanges(log logger.Logger, changes registryChanges) {
	for _, a := range changes.Added {
		log.Info("Activity type added", map[string]interface{}{"id": a.ID, "name": a.Name})
	}
	for _, a := range changes.Renamed {
		log.Info("Activity type renamed", map[string]interface{}{"id": a.ID, "name": a.Name})
	}
	for _, a := range changes.Removed {
		log.Warn("Activity type removed", map[string]interface{}{"id": a.ID, "name": a.Name})
	}
}
