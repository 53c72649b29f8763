package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "activity-export", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"run", "types"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"instance", "i"},
		{"client-id", "d"},
		{"client-secret", "s"},
		{"debug", "g"},
		{"config", ""},
	}
	for _, tt := range tests {
		flag := cmd.PersistentFlags().Lookup(tt.name)
		require.NotNil(t, flag, tt.name)
		assert.Equal(t, tt.shorthand, flag.Shorthand, tt.name)
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		shorthand string
	}{
		{"since", "c"},
		{"output", "o"},
		{"change-data-fields", "f"},
		{"web", "w"},
		{"mail", "m"},
		{"not-use-jst", "j"},
		{"resume", ""},
		{"checkpoint", ""},
		{"delimiter", ""},
		{"timezone", ""},
	}
	for _, tt := range tests {
		flag := runCmd.Flags().Lookup(tt.name)
		require.NotNil(t, flag, tt.name)
		assert.Equal(t, tt.shorthand, flag.Shorthand, tt.name)
	}
}

func TestRunCommand_FlagsReachConfig(t *testing.T) {
	opts := &RootOptions{}
	cmd := NewRootCommandWithOptions(opts)
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	require.NoError(t, runCmd.ParseFlags([]string{"-c", "2015-04-01", "-m", "-f", "Company,Title", "--delimiter", "\t"}))

	assert.Equal(t, "2015-04-01", opts.viper.GetString("export.since"))
	assert.True(t, opts.viper.GetBool("export.include_mail_activity"))
	assert.False(t, opts.viper.GetBool("export.include_web_activity"))
	assert.Equal(t, []string{"Company", "Title"}, opts.viper.GetStringSlice("export.custom_fields"))
	assert.Equal(t, "\t", opts.viper.GetString("export.delimiter"))
	assert.Equal(t, []string{"Lead Score"}, opts.viper.GetStringSlice("export.tracked_fields"))
}
