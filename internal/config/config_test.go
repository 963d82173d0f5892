package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/palantiri/internal/jobs"
)

func TestLoad(t *testing.T) {
	t.Setenv("PALANTIRI_TEST_ENV", "staging")

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, "palantiri", cfg.App.Name)
			assert.Equal(t, "staging", cfg.App.Environment)
			assert.Equal(t, "palantiri", cfg.App.Service)
			assert.Equal(t, "localhost", cfg.RabbitMQ.Host)
			assert.Equal(t, 3, cfg.RabbitMQ.Consumer.PrefetchCount)
			assert.True(t, cfg.Database.Enabled)
			assert.Equal(t, "tcp://swarm:2375", cfg.Swarm.Host)
			assert.Equal(t, time.Minute, cfg.Health.CollectInterval)
			assert.Equal(t, int64(1000), cfg.Health.RSSLimit)

			// defaults
			assert.Equal(t, 4242, cfg.Swarm.DockPort)
			assert.Equal(t, "swarm", cfg.Health.SwarmAgentContainer)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "info", cfg.Logging.Level)

			assert.NoError(t, cfg.ValidateWorkerConfig())
		})
	}
}

func TestConfig_RetryBudget(t *testing.T) {
	cfg := &Config{
		Jobs: JobsConfig{
			Overrides: map[string]RetryBudget{
				jobs.ImagePush:       {MaxAttempts: 7},
				jobs.DockExistsCheck: {RetryInterval: time.Minute},
			},
		},
		Health: HealthConfig{ASGCreatedDelay: 3 * time.Minute},
	}
	cfg.ApplyDefaults()

	tests := []struct {
		job  string
		want RetryBudget
	}{
		{job: jobs.HealthCheck, want: RetryBudget{MaxAttempts: 5, RetryInterval: 15 * time.Second}},
		{job: jobs.DockImagePush, want: RetryBudget{MaxAttempts: 2, RetryInterval: 15 * time.Second}},
		{job: jobs.ImagePush, want: RetryBudget{MaxAttempts: 7, RetryInterval: 15 * time.Second}},
		{job: jobs.DockExistsCheck, want: RetryBudget{MaxAttempts: 10, RetryInterval: time.Minute}},
		{job: jobs.ASGCheckCreated, want: RetryBudget{MaxAttempts: 5, RetryInterval: 3 * time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.job, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.RetryBudget(tt.job))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			RabbitMQ: RabbitMQConfig{Host: "localhost"},
			Swarm:    SwarmConfig{Host: "tcp://swarm:2375"},
			Health:   HealthConfig{InfoImage: "dock-info", ScheduleEnabled: true},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "invalid rabbitmq port", mutate: func(c *Config) { c.RabbitMQ.Port = 70000 }, errString: "invalid rabbitmq port"},
		{name: "unknown job override", mutate: func(c *Config) {
			c.Jobs.Overrides = map[string]RetryBudget{"nope": {MaxAttempts: 1}}
		}, errString: "unknown job"},
		{name: "negative override", mutate: func(c *Config) {
			c.Jobs.Overrides = map[string]RetryBudget{jobs.ImagePush: {MaxAttempts: -1}}
		}, errString: "must not be negative"},
		{name: "database enabled without name", mutate: func(c *Config) {
			c.Database.Enabled = true
			c.Database.Host = "localhost"
		}, errString: "database name is required"},
		{name: "database disabled ignores fields", mutate: func(c *Config) { c.Database.Host = "" }},
		{name: "missing swarm host", mutate: func(c *Config) { c.Swarm.Host = "" }, errString: "swarm host is required"},
		{name: "missing info image", mutate: func(c *Config) { c.Health.InfoImage = "" }, errString: "info_image is required"},
		{name: "cron schedule", mutate: func(c *Config) { c.Health.Schedule = "*/5 * * * *" }},
		{name: "every schedule", mutate: func(c *Config) { c.Health.Schedule = "@every 2m" }},
		{name: "invalid schedule", mutate: func(c *Config) { c.Health.Schedule = "sometimes" }, errString: "invalid health schedule"},
		{name: "invalid schedule ignored when disabled", mutate: func(c *Config) {
			c.Health.ScheduleEnabled = false
			c.Health.Schedule = "sometimes"
		}},
		{name: "invalid server port", mutate: func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = -1
		}, errString: "invalid server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestLoad_ShippedConfigScheduler(t *testing.T) {
	const shipped = "../../configs/palantiri/config.yaml"

	t.Setenv("PALANTIRI_SCHEDULE_ENABLED", "")
	cfg, err := Load(shipped)
	require.NoError(t, err)
	assert.False(t, cfg.Health.ScheduleEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Health.CollectInterval)

	t.Setenv("PALANTIRI_SCHEDULE_ENABLED", "true")
	t.Setenv("PALANTIRI_HEALTH_SCHEDULE", "@every 10m")
	cfg, err = Load(shipped)
	require.NoError(t, err)
	assert.True(t, cfg.Health.ScheduleEnabled)
	assert.Equal(t, "@every 10m", cfg.Health.Schedule)
}
