package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	prev := CLILogger
	t.Cleanup(func() { CLILogger = prev })

	InitCLILogger("agritutor-test", true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("verbose cli logger", zap.String("test", "value"))
}

func TestInitServerLogger(t *testing.T) {
	prevServer, prevCLI := ServerLogger, CLILogger
	t.Cleanup(func() { ServerLogger, CLILogger = prevServer, prevCLI })

	for _, profile := range []string{"structured", "simple", ""} {
		InitServerLogger("agritutor-test", "debug", profile)
		require.NotNil(t, ServerLogger, "profile %q", profile)
		ServerLogger.Info("server logger ready", zap.String("profile", profile))
	}
	assert.Same(t, ServerLogger, Logger())
}

func TestLoggerFallsBackToCLI(t *testing.T) {
	prevServer, prevCLI := ServerLogger, CLILogger
	t.Cleanup(func() { ServerLogger, CLILogger = prevServer, prevCLI })

	ServerLogger, CLILogger = nil, nil
	assert.Nil(t, Logger())

	InitCLILogger("agritutor-test", false)
	assert.Same(t, CLILogger, Logger())
}

func TestServerLoggerConfig(t *testing.T) {
	structured := serverLoggerConfig("svc", "warning", "structured")
	assert.Equal(t, logging.ProfileStructured, structured.Profile)
	assert.Equal(t, "WARN", structured.DefaultLevel)
	assert.Equal(t, "json", structured.Sinks[0].Format)
	require.Len(t, structured.Middleware, 1)

	simple := serverLoggerConfig("svc", "bogus", "SIMPLE")
	assert.Equal(t, logging.ProfileSimple, simple.Profile)
	assert.Equal(t, "INFO", simple.DefaultLevel)
	assert.Equal(t, "console", simple.Sinks[0].Format)
	assert.Empty(t, simple.Middleware)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warn":    "WARN",
		"error":   "ERROR",
		"unknown": "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9191")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	_, err = resolvePort("nope")
	assert.Error(t, err)
}

func TestCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
}
