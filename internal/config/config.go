package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/palantiri/internal/jobs"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Docker   DockerConfig   `yaml:"docker"`
	Swarm    SwarmConfig    `yaml:"swarm"`
	Health   HealthConfig   `yaml:"health"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Service     string `yaml:"service"` // prefix of event subscription queues
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// DatabaseConfig holds PostgreSQL connection configuration. The database
// only stores error reports and is optional.
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DockerConfig holds settings for talking to dock daemons
type DockerConfig struct {
	APIVersion    string        `yaml:"api_version"`
	TLSCertPath   string        `yaml:"tls_cert_path"`
	RegistryAuth  string        `yaml:"registry_auth"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// SwarmConfig holds settings for the cluster manager
type SwarmConfig struct {
	Host        string `yaml:"host"`
	DockPort    int    `yaml:"dock_port"`
	OrgLabel    string `yaml:"org_label"`
	TLSCertPath string `yaml:"tls_cert_path"`
}

// HealthConfig tunes fleet monitoring and remediation
type HealthConfig struct {
	ScheduleEnabled     bool          `yaml:"schedule_enabled"`
	Schedule            string        `yaml:"schedule"`
	CollectInterval     time.Duration `yaml:"collect_interval"`
	InfoImage           string        `yaml:"info_image"`
	RSSLimit            int64         `yaml:"rss_limit"`
	UserRegistry        string        `yaml:"user_registry"`
	ASGCreatedDelay     time.Duration `yaml:"asg_created_delay"`
	SwarmAgentContainer string        `yaml:"swarm_agent_container"`
	CleanupTimeout      time.Duration `yaml:"cleanup_timeout"`
}

// RetryBudget bounds the attempts of one job
type RetryBudget struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval"`
}

// JobsConfig holds the default retry budget and per-job overrides
type JobsConfig struct {
	Default   RetryBudget            `yaml:"default"`
	Overrides map[string]RetryBudget `yaml:"overrides"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
}

// builtinBudgets are the per-job attempt counts used unless overridden
var builtinBudgets = map[string]RetryBudget{
	jobs.DockerHealthCheck:   {MaxAttempts: 5},
	jobs.DockDiskFilled:      {MaxAttempts: 5},
	jobs.ImageRemove:         {MaxAttempts: 5},
	jobs.VolumeRemove:        {MaxAttempts: 5},
	jobs.ImagePush:           {MaxAttempts: 5},
	jobs.DockImagePush:       {MaxAttempts: 2},
	jobs.DockImageRemove:     {MaxAttempts: 2},
	jobs.DockImagesRemove:    {MaxAttempts: 2},
	jobs.DockVolumesRemove:   {MaxAttempts: 2},
	jobs.DockVolumeRemove:    {MaxAttempts: 2},
	jobs.DockExistsCheck:     {MaxAttempts: 10, RetryInterval: 30 * time.Second},
	jobs.ASGCheckCreated:     {MaxAttempts: 5},
	jobs.OnDockUnhealthy:     {MaxAttempts: 5},
	jobs.DockLost:            {MaxAttempts: 5},
	jobs.OrganizationCreated: {MaxAttempts: 5},
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and applies defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with working defaults
func (c *Config) ApplyDefaults() {
	setString(&c.App.Name, "palantiri")
	setString(&c.App.Service, c.App.Name)
	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "console")
	setString(&c.Logging.Output, "stdout")

	setInt(&c.RabbitMQ.Port, 5672)
	setString(&c.RabbitMQ.VHost, "/")
	setInt(&c.RabbitMQ.Connection.RetryAttempts, 5)
	setDuration(&c.RabbitMQ.Connection.RetryInterval, 2*time.Second)
	setDuration(&c.RabbitMQ.Connection.Heartbeat, 10*time.Second)
	setDuration(&c.RabbitMQ.Connection.ConnectionTimeout, 30*time.Second)
	setDuration(&c.RabbitMQ.Connection.ReconnectMaxDelay, time.Minute)
	setInt(&c.RabbitMQ.Publish.RetryAttempts, 3)
	setDuration(&c.RabbitMQ.Publish.RetryInterval, 100*time.Millisecond)
	if c.RabbitMQ.Publish.BackoffMultiplier <= 0 {
		c.RabbitMQ.Publish.BackoffMultiplier = 2
	}
	setInt(&c.RabbitMQ.Consumer.PrefetchCount, 5)

	setInt(&c.Database.Port, 5432)
	setString(&c.Database.SSLMode, "disable")
	setInt(&c.Database.MaxOpenConns, 10)
	setInt(&c.Database.MaxIdleConns, 2)

	setInt(&c.Server.Port, 8080)
	setDuration(&c.Server.ReadTimeout, 10*time.Second)
	setDuration(&c.Server.WriteTimeout, 10*time.Second)
	setDuration(&c.Server.IdleTimeout, time.Minute)
	setDuration(&c.Server.ShutdownTimeout, 10*time.Second)

	setInt(&c.Docker.RetryAttempts, 3)
	setDuration(&c.Docker.RetryInterval, time.Second)
	setDuration(&c.Docker.CallTimeout, 2*time.Minute)

	setInt(&c.Swarm.DockPort, 4242)
	setString(&c.Swarm.OrgLabel, "org")

	setDuration(&c.Health.CollectInterval, 5*time.Minute)
	setDuration(&c.Health.ASGCreatedDelay, 5*time.Minute)
	setString(&c.Health.SwarmAgentContainer, "swarm")
	setDuration(&c.Health.CleanupTimeout, time.Minute)

	setInt(&c.Jobs.Default.MaxAttempts, 5)
	setDuration(&c.Jobs.Default.RetryInterval, 15*time.Second)

	setDuration(&c.Worker.JobTimeout, 5*time.Minute)
	setDuration(&c.Worker.ShutdownTimeout, 30*time.Second)
	setDuration(&c.Worker.ReconnectDelay, 5*time.Second)
}

// RetryBudget returns the budget of the named job: a configured override,
// then the built-in budget, then the default, field by field.
func (c *Config) RetryBudget(name string) RetryBudget {
	budget := c.Jobs.Default

	if builtin, ok := builtinBudgets[name]; ok {
		budget = merge(budget, builtin)
	}
	if name == jobs.ASGCheckCreated && c.Health.ASGCreatedDelay > 0 {
		budget.RetryInterval = c.Health.ASGCreatedDelay
	}
	if override, ok := c.Jobs.Overrides[name]; ok {
		budget = merge(budget, override)
	}
	return budget
}

func merge(base, over RetryBudget) RetryBudget {
	if over.MaxAttempts > 0 {
		base.MaxAttempts = over.MaxAttempts
	}
	if over.RetryInterval > 0 {
		base.RetryInterval = over.RetryInterval
	}
	return base
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.Jobs.Default.MaxAttempts <= 0 {
		return fmt.Errorf("jobs default max_attempts must be greater than 0")
	}

	for name, budget := range c.Jobs.Overrides {
		if _, ok := jobs.Lookup(name); !ok {
			return fmt.Errorf("retry budget for unknown job %q", name)
		}
		if budget.MaxAttempts < 0 || budget.RetryInterval < 0 {
			return fmt.Errorf("retry budget for %q must not be negative", name)
		}
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker command needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Swarm.Host == "" {
		return fmt.Errorf("swarm host is required")
	}

	if c.Swarm.DockPort < MinPort || c.Swarm.DockPort > MaxPort {
		return fmt.Errorf("invalid swarm dock_port: %d (must be between %d and %d)", c.Swarm.DockPort, MinPort, MaxPort)
	}

	if c.Health.InfoImage == "" {
		return fmt.Errorf("health info_image is required")
	}

	if c.Health.ScheduleEnabled {
		if c.Health.Schedule == "" && c.Health.CollectInterval <= 0 {
			return fmt.Errorf("health collect_interval must be greater than 0")
		}
		if c.Health.Schedule != "" {
			if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
				return fmt.Errorf("invalid health schedule %q: %w", c.Health.Schedule, err)
			}
		}
	}

	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		return fmt.Errorf("rabbitmq prefetch_count must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Server.Enabled && (c.Server.Port < MinPort || c.Server.Port > MaxPort) {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}
