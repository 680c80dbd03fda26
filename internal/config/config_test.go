package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/cooldown"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "@UssboxBot", cfg.Oracle.BotUsername)
	assert.Equal(t, "4.16.30-vxCUSTOM", cfg.Oracle.SystemVersion)
	assert.Equal(t, "/raw", cfg.Oracle.IDCommand)
	assert.True(t, cfg.Oracle.SkipLimitedToday)
	assert.Equal(t, 2, cfg.Oracle.History)
	assert.Equal(t, "ничего не найдено", cfg.Oracle.NotFoundMarker)
	assert.Equal(t, 10, cfg.Oracle.FloodPaddingSecs)
	assert.Equal(t, 0, cfg.Oracle.MaxFloodRetries)
	assert.Equal(t, 15, cfg.Cooldown.ActionMinSecs)
	assert.Equal(t, 100, cfg.Cooldown.SessionMaxSecs)
	assert.Equal(t, 26, cfg.Cooldown.CycleMaxHours)
	assert.Equal(t, "sessions.json", cfg.Credentials.Path)
	assert.Equal(t, "google", cfg.Sheet.Driver)
	assert.Equal(t, "Лист2", cfg.Sheet.Worksheet)
	assert.Equal(t, 3, cfg.Sheet.Columns.FIO)
	assert.Equal(t, 4, cfg.Sheet.Columns.NationalID)
	assert.Equal(t, 6, cfg.Sheet.Columns.Phone)
	assert.Equal(t, 7, cfg.Sheet.Columns.Email)
	assert.Equal(t, 2, cfg.Sheet.FirstRow)
	assert.Equal(t, 3, cfg.Sheet.Retry.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
sheet:
  driver: xlsx
  path: people.xlsx
  columns:
    phone: 8
oracle:
  daily_budget: 40
log:
  level: warn
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "xlsx", cfg.Sheet.Driver)
	assert.Equal(t, "people.xlsx", cfg.Sheet.Path)
	assert.Equal(t, 8, cfg.Sheet.Columns.Phone)
	assert.Equal(t, 7, cfg.Sheet.Columns.Email)
	assert.Equal(t, 40, cfg.Oracle.DailyBudget)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENRICHER_SHEET_SPREADSHEET_ID", "sheet-123")
	t.Setenv("ENRICHER_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sheet-123", cfg.Sheet.SpreadsheetID)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sheet: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func loaded(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateRun(t *testing.T) {
	cfg := loaded(t)

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet.spreadsheet_id is required")

	cfg.Sheet.SpreadsheetID = "sheet-123"
	assert.NoError(t, cfg.Validate("run"))
	assert.NoError(t, cfg.Validate("once"))
}

func TestValidateXLSXNeedsPath(t *testing.T) {
	cfg := loaded(t)
	cfg.Sheet.Driver = "xlsx"

	err := cfg.Validate("once")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet.path")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := loaded(t)
	cfg.Sheet.Driver = "csv"
	cfg.Sheet.Columns.Phone = 0
	cfg.Cooldown.SessionMinSecs = 200

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet.driver must be google or xlsx")
	assert.Contains(t, err.Error(), "sheet.columns")
	assert.Contains(t, err.Error(), "cooldown.session")
}

func TestValidateRequiresIDCommand(t *testing.T) {
	cfg := loaded(t)
	cfg.Sheet.SpreadsheetID = "sheet-123"
	cfg.Oracle.IDCommand = ""

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.id_command is required")
}

func TestValidateSession(t *testing.T) {
	cfg := loaded(t)
	assert.NoError(t, cfg.Validate("session"))

	cfg.Oracle.SessionsDir = ""
	assert.Error(t, cfg.Validate("session"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := loaded(t)
	assert.Error(t, cfg.Validate("serve"))
}

func TestConverters(t *testing.T) {
	cfg := loaded(t)

	oc := cfg.OracleClient()
	assert.Equal(t, 10*time.Second, oc.FloodPadding)
	assert.Equal(t, cooldown.Seconds(30, 60), oc.Cooldown)
	assert.Equal(t, ".html", oc.DocumentExt)

	sc := cfg.Scheduler()
	assert.Equal(t, cooldown.Seconds(15, 30), sc.Settle)
	assert.Equal(t, cooldown.Seconds(45, 100), sc.Session)
	assert.Equal(t, cooldown.Hours(14, 26), sc.Cycle)

	sw := cfg.Sweep()
	assert.Equal(t, 3, sw.Columns.FullName)
	assert.Equal(t, 7, sw.Columns.Email)
	assert.Equal(t, "Email", sw.EmailHeader)

	sh := cfg.SheetStore()
	assert.Equal(t, 3, sh.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, sh.Retry.InitialBackoff)

	assert.Equal(t, "sqlite", cfg.Ledger().Driver)
	assert.Equal(t, "@UssboxBot", cfg.Telegram().BotUsername)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	assert.NoError(t, err)
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "verbose", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "enricher.log")
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json", File: path}))
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	zap.L().Info("[METRIC] processed row={'row': 2}")
	_ = zap.L().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, " | INFO | ")
	assert.True(t, strings.HasSuffix(line, "[METRIC] processed row={'row': 2}"))
}
