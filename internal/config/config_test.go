package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noren/internal/override"
)

const sampleYAML = `
schedule:
  open_time: 11
  last_order_time: 20.5
  close_time: 21
  closed_weekday: 1
  holidays:
    - start: "2026-12-29"
      end: "2027-01-03"

content_service:
  base_url: https://cms.example.com
  api_key: ${TEST_CMS_KEY}

override:
  refresh_interval_seconds: 45
  failure_policy: clear
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CMS_KEY", "secret-key")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://cms.example.com", cfg.ContentService.BaseURL)
	assert.Equal(t, "secret-key", cfg.ContentService.APIKey)
	assert.Equal(t, 45*time.Second, cfg.RefreshInterval())
	assert.Equal(t, override.PolicyClear, cfg.FailurePolicy())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "content_service:\n  base_url: https://cms.example.com\n"))
	require.NoError(t, err)

	assert.Equal(t, 11.0, cfg.Schedule.OpenTime)
	assert.Equal(t, 20.5, cfg.Schedule.LastOrderTime)
	assert.Equal(t, "data/noren.db", cfg.Database.Path)
	assert.Equal(t, override.DefaultRefreshInterval, cfg.RefreshInterval())
	assert.Equal(t, override.PolicyHold, cfg.FailurePolicy(), "hold is the default failure policy")
}

func TestWeeklySchedule(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	weekly, err := cfg.WeeklySchedule()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, weekly.ClosedWeekday)
	require.Len(t, weekly.Holidays, 1)
	assert.True(t, weekly.IsHoliday(time.Date(2027, 1, 1, 9, 0, 0, 0, time.Local)))
	assert.False(t, weekly.IsHoliday(time.Date(2027, 1, 4, 9, 0, 0, 0, time.Local)))
}

func TestWeeklyScheduleRejectsBadWindow(t *testing.T) {
	body := `
schedule:
  open_time: 21
  last_order_time: 11
  close_time: 22
  closed_weekday: 1
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	_, err = cfg.WeeklySchedule()
	assert.Error(t, err)
}
