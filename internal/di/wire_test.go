package di

import (
	"testing"

	"github.com/aristath/allocator/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:             t.TempDir(),
		Port:                8001,
		YahooBaseURL:        "http://127.0.0.1:0",
		HistoryRange:        "1y",
		PriceSyncSchedule:   config.DefaultPriceSyncSchedule,
		MaintenanceSchedule: config.DefaultMaintenanceSchedule,
		DefaultLambda:       0.5,
	}
}

func TestWire(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.HistoryStore)
	assert.NotNil(t, container.YahooClient)
	assert.NotNil(t, container.MarketData)
	assert.NotNil(t, container.Optimizer)
	assert.NotNil(t, container.AnalysisService)
	assert.NotNil(t, container.Scheduler)

	require.NotNil(t, jobs)
	assert.NotNil(t, jobs.PriceSync)
	assert.NotNil(t, jobs.HistoryMaintenance)

	// an empty portfolio has nothing to sync
	assert.NoError(t, jobs.PriceSync.Run())
	assert.NoError(t, jobs.HistoryMaintenance.Run())
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.PriceSyncSchedule = "not a schedule"

	_, _, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register jobs")
}

func TestWire_EmptySchedulesStillCreateJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.PriceSyncSchedule = ""
	cfg.MaintenanceSchedule = ""

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, jobs.PriceSync)
	assert.NotNil(t, jobs.HistoryMaintenance)
}

func TestInitializeServices_RequiresDatabase(t *testing.T) {
	err := InitializeServices(&Container{}, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_NilContainer(t *testing.T) {
	_, err := RegisterJobs(nil, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}

func TestContainer_CloseNil(t *testing.T) {
	var c *Container
	assert.NoError(t, c.Close())
	assert.NoError(t, (&Container{}).Close())
}
