package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	NotifyLog   = "log"
	NotifyAsynq = "asynq"
)

// Config aggregates everything main needs to build the engine.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Redis  RedisConfig  `mapstructure:"redis"`
	S3     S3Config     `mapstructure:"s3"`
	Outbox OutboxConfig `mapstructure:"outbox"`
	Notify NotifyConfig `mapstructure:"notify"`
	Engine EngineConfig `mapstructure:"engine"`
}

type AppConfig struct {
	Env            string        `mapstructure:"env"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	LogLevel       string        `mapstructure:"log_level"`
	Store          string        `mapstructure:"store"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// SeedFile lists resources registered at startup when the store is empty.
	SeedFile string `mapstructure:"seed_file"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	GroupID     string   `mapstructure:"group_id"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig backs the distributed resource lock and the asynq notifier.
// An empty Addr keeps locking in-process.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type S3Config struct {
	Endpoint       string `mapstructure:"endpoint"`
	PublicEndpoint string `mapstructure:"public_endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	Bucket         string `mapstructure:"bucket"`
	UseSSL         bool   `mapstructure:"use_ssl"`
}

func (s S3Config) Enabled() bool { return s.Endpoint != "" }

type OutboxConfig struct {
	PollInterval time.Duration   `mapstructure:"poll_interval"`
	RetryBackoff []time.Duration `mapstructure:"retry_backoff"`
	BatchSize    int             `mapstructure:"batch_size"`
}

type NotifyConfig struct {
	Mode  string `mapstructure:"mode"`
	Queue string `mapstructure:"queue"`
}

type EngineConfig struct {
	Booking      BookingConfig      `mapstructure:"booking"`
	Waitlist     WaitlistConfig     `mapstructure:"waitlist"`
	Reassignment ReassignmentConfig `mapstructure:"reassignment"`
	Series       SeriesConfig       `mapstructure:"series"`
	Sweep        SweepConfig        `mapstructure:"sweep"`
}

type BookingConfig struct {
	AutoConfirm bool          `mapstructure:"auto_confirm"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type WaitlistConfig struct {
	PriorityTable       map[string]int `mapstructure:"priority_table"`
	DefaultPriority     int            `mapstructure:"default_priority"`
	EscalationInterval  time.Duration  `mapstructure:"escalation_interval"`
	EscalationStep      int            `mapstructure:"escalation_step"`
	MaxEscalation       int            `mapstructure:"max_escalation"`
	OfferResponseWindow time.Duration  `mapstructure:"offer_response_window"`
	MaxOffers           int            `mapstructure:"max_offers"`
	DemotionPenalty     int            `mapstructure:"demotion_penalty"`
	EntryTTL            time.Duration  `mapstructure:"entry_ttl"`
}

type ReassignmentConfig struct {
	EmergencyThresholdHours  float64       `mapstructure:"emergency_threshold_hours"`
	ResponseWindow           time.Duration `mapstructure:"response_window"`
	Fallback                 string        `mapstructure:"fallback"`
	AllowPartialReassignment bool          `mapstructure:"allow_partial_reassignment"`
	CapacityTolerancePercent int           `mapstructure:"capacity_tolerance_percent"`
}

type SeriesConfig struct {
	Horizon            time.Duration `mapstructure:"horizon"`
	MaxInstancesPerRun int           `mapstructure:"max_instances_per_run"`
}

// SweepConfig holds cron specs; an empty spec disables the job.
type SweepConfig struct {
	Instances    string `mapstructure:"instances"`
	Waitlist     string `mapstructure:"waitlist"`
	Reassignment string `mapstructure:"reassignment"`
	Completion   string `mapstructure:"completion"`
}

// Load reads defaults, then the YAML file at path (or ./config/slotkeeper.yaml
// when path is empty), then SLOTKEEPER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("slotkeeper")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SLOTKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.App.Store = strings.ToLower(strings.TrimSpace(cfg.App.Store))
	cfg.Notify.Mode = strings.ToLower(strings.TrimSpace(cfg.Notify.Mode))
	if cfg.S3.PublicEndpoint == "" {
		cfg.S3.PublicEndpoint = cfg.S3.Endpoint
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.store", StoreMemory)
	v.SetDefault("app.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("app.idempotency_ttl", "168h")
	v.SetDefault("app.seed_file", "")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "slotkeeper")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "")
	v.SetDefault("kafka.group_id", "slotkeeper-engine")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10s")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_endpoint", "")
	v.SetDefault("s3.access_key", "minioadmin")
	v.SetDefault("s3.secret_key", "minioadmin")
	v.SetDefault("s3.bucket", "slotkeeper-calendars")
	v.SetDefault("s3.use_ssl", false)

	v.SetDefault("outbox.poll_interval", "500ms")
	v.SetDefault("outbox.retry_backoff", []string{"1s", "5s", "30s"})
	v.SetDefault("outbox.batch_size", 50)

	v.SetDefault("notify.mode", NotifyLog)
	v.SetDefault("notify.queue", "notifications")

	v.SetDefault("engine.booking.auto_confirm", false)
	v.SetDefault("engine.booking.lock_timeout", "5s")

	v.SetDefault("engine.waitlist.priority_table", map[string]int{"admin": 40, "faculty": 30, "staff": 20, "student": 10})
	v.SetDefault("engine.waitlist.default_priority", 10)
	v.SetDefault("engine.waitlist.escalation_interval", "24h")
	v.SetDefault("engine.waitlist.escalation_step", 1)
	v.SetDefault("engine.waitlist.max_escalation", 0)
	v.SetDefault("engine.waitlist.offer_response_window", "2h")
	v.SetDefault("engine.waitlist.max_offers", 3)
	v.SetDefault("engine.waitlist.demotion_penalty", 1)
	v.SetDefault("engine.waitlist.entry_ttl", "336h")

	v.SetDefault("engine.reassignment.emergency_threshold_hours", 24)
	v.SetDefault("engine.reassignment.response_window", "48h")
	v.SetDefault("engine.reassignment.fallback", "AUTO_APPROVE_GOOD")
	v.SetDefault("engine.reassignment.allow_partial_reassignment", false)
	v.SetDefault("engine.reassignment.capacity_tolerance_percent", 10)

	v.SetDefault("engine.series.horizon", "2160h")
	v.SetDefault("engine.series.max_instances_per_run", 200)

	v.SetDefault("engine.sweep.instances", "@every 1m")
	v.SetDefault("engine.sweep.waitlist", "@every 1m")
	v.SetDefault("engine.sweep.reassignment", "@every 1m")
	v.SetDefault("engine.sweep.completion", "@every 1m")
}

// Validate checks the values main cannot recover from.
func (c Config) Validate() error {
	var problems []string
	switch c.App.Store {
	case StoreMemory:
	case StoreMongo:
		if c.Mongo.URI == "" {
			problems = append(problems, "mongo.uri is required when app.store is mongo")
		}
		if c.Mongo.Database == "" {
			problems = append(problems, "mongo.database is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("app.store must be %q or %q, got %q", StoreMemory, StoreMongo, c.App.Store))
	}
	if _, err := ParseLevel(c.App.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Notify.Mode {
	case NotifyLog:
	case NotifyAsynq:
		if !c.Redis.Enabled() {
			problems = append(problems, "notify.mode asynq needs redis.addr")
		}
	default:
		problems = append(problems, fmt.Sprintf("notify.mode must be %q or %q", NotifyLog, NotifyAsynq))
	}
	if c.S3.Enabled() && c.S3.Bucket == "" {
		problems = append(problems, "s3.bucket is required when s3.endpoint is set")
	}
	switch strings.ToUpper(strings.TrimSpace(c.Engine.Reassignment.Fallback)) {
	case "AUTO_APPROVE_GOOD", "WAITLIST":
	default:
		problems = append(problems, fmt.Sprintf("engine.reassignment.fallback: unknown value %q", c.Engine.Reassignment.Fallback))
	}
	if c.Engine.Waitlist.MaxOffers < 0 || c.Engine.Waitlist.DemotionPenalty < 0 {
		problems = append(problems, "engine.waitlist counters must not be negative")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sweeps := []struct{ name, spec string }{
		{"instances", c.Engine.Sweep.Instances},
		{"waitlist", c.Engine.Sweep.Waitlist},
		{"reassignment", c.Engine.Sweep.Reassignment},
		{"completion", c.Engine.Sweep.Completion},
	}
	for _, s := range sweeps {
		if s.spec == "" {
			continue
		}
		if _, err := parser.Parse(s.spec); err != nil {
			problems = append(problems, fmt.Sprintf("engine.sweep.%s: %v", s.name, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel maps the configured log level onto slog.
func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("app.log_level: %w", err)
	}
	return level, nil
}
