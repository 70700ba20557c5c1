package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
)

func quietEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "QUIZ_CONFIG", "DB_PATH", "PROMPT_TIMEOUT", "STATUS_ADDR"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogCommandPrintsDefault(t *testing.T) {
	quietEnv(t)

	out, err := execute(t, "", "catalog")
	require.NoError(t, err)

	catalog, err := service.DecodeCatalog([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, service.DefaultCatalog(), catalog)
}

func TestCatalogCommandRejectsMissingFile(t *testing.T) {
	quietEnv(t)

	_, err := execute(t, "", "catalog", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPlayThenResults(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "results.db")

	out, err := execute(t, "2\n3\n2\n3\n1\n", "play", "--db", db, "--name", "Aoife", "--user-id", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Fairy Type: Leprechaun")

	out, err = execute(t, "", "results", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Leprechaun")
	assert.Contains(t, out, "TOTAL")

	out, err = execute(t, "", "results", "--db", db, "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Aoife's Fairy Form")
	assert.Contains(t, out, "Realm Chosen: Druids")

	_, err = execute(t, "", "results", "--db", db, "6")
	assert.ErrorContains(t, err, "no result for user 6")
}

func TestPlayQuit(t *testing.T) {
	quietEnv(t)

	out, err := execute(t, "q\n", "play")
	require.NoError(t, err)
	assert.Contains(t, out, "Farewell")
}

func TestResultsNeedsDatabase(t *testing.T) {
	quietEnv(t)

	_, err := execute(t, "", "results")
	assert.ErrorContains(t, err, "results need a database")
}

func TestRunNeedsToken(t *testing.T) {
	quietEnv(t)

	_, err := execute(t, "", "run")
	assert.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN")
}
