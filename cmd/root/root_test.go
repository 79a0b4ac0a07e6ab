package root

import (
	"bytes"
	"context"
	"testing"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "stmt-ledger", Cmd.Use)
	assert.Contains(t, Cmd.Long, "mBank")
	assert.True(t, Cmd.SilenceUsage)
	assert.NotNil(t, Cmd.RunE)
	assert.NotNil(t, Cmd.PersistentPreRunE)
	assert.NotNil(t, Cmd.PersistentPostRun)
}

func TestRootCommand_Flags(t *testing.T) {
	if Cmd.PersistentFlags().Lookup("owner") == nil {
		Init()
	}
	for _, name := range []string{"config", "log-level", "log-format", "driver", "db", "owner", "report"} {
		assert.NotNil(t, Cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", Cmd.PersistentFlags().Lookup("report").DefValue)
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name    string
		flags   GlobalFlags
		check   func(t *testing.T, cfg *config.Config)
		wantErr bool
	}{
		{
			name:  "empty flags keep the config",
			flags: GlobalFlags{},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.Default().Database.DSN, cfg.Database.DSN)
				assert.Equal(t, config.Default().Import.Owner, cfg.Import.Owner)
			},
		},
		{
			name:  "flags win",
			flags: GlobalFlags{LogLevel: "debug", LogFormat: "json", Driver: "postgres", Database: "postgres://localhost/ledger", Owner: "anna"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "json", cfg.Log.Format)
				assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
				assert.Equal(t, "postgres://localhost/ledger", cfg.Database.DSN)
				assert.Equal(t, "anna", cfg.Import.Owner)
			},
		},
		{name: "unknown driver", flags: GlobalFlags{Driver: "mysql"}, wantErr: true},
		{name: "bad log level", flags: GlobalFlags{LogLevel: "loud"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			err := applyOverrides(cfg, tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestSetContainer_Owner(t *testing.T) {
	prev := Log
	t.Cleanup(func() {
		SetContainer(nil)
		appConfig = nil
		Log = prev
	})

	assert.Equal(t, config.Default().Import.Owner, Owner())

	cfg := config.Default()
	cfg.Import.Owner = "anna"
	c, err := container.NewWithRepository(context.Background(), cfg, memory.NewStore(), logging.NewMockLogger())
	require.NoError(t, err)
	defer c.Close()

	SetContainer(c)
	assert.Same(t, c, GetContainer())
	assert.Equal(t, "anna", Owner())
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, []byte("a")))
	require.NoError(t, Print(&buf, []byte("b\n")))
	require.NoError(t, Print(&buf, nil))
	assert.Equal(t, "a\nb\n", buf.String())
}
