package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.json"
	PathEnv     = "FORWARDER_CONFIG"

	LedgerFile     = "file"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

type Config struct {
	Telegram  TelegramConfig
	Scoring   ScoringConfig
	Quota     QuotaConfig
	Scheduler SchedulerConfig
	Retry     RetryConfig
	Ledger    LedgerConfig
	Server    ServerConfig
	Redis     RedisConfig
	Log       LogConfig
}

type TelegramConfig struct {
	APIID         int
	APIHash       string
	StringSession string
	TargetChannel string
}

type ScoringConfig struct {
	FunnyCoefficient       float64
	PositiveReactions      []string
	NegativeReactions      []string
	SpreadingCoefficient   float64
	InvolvementCoefficient float64
	MemeAgeThreshold       time.Duration
}

type QuotaConfig struct {
	MaxMessagesToSend int
	SendInterval      time.Duration
	MinSendGap        time.Duration
}

type SchedulerConfig struct {
	CheckPeriod  time.Duration
	Folders      []string
	HistoryDepth int
}

type RetryConfig struct {
	MetadataMaxAttempts  int
	IterationMaxAttempts int
	IterationRetryDelay  time.Duration
	SendMaxAttempts      int
}

type LedgerConfig struct {
	Backend     string
	File        string
	PostgresURL string
	RedisKey    string
}

type ServerConfig struct {
	Address string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig mirrors the on-disk keys. Pointers tell a missing key apart
// from an explicit zero.
type fileConfig struct {
	APIID                  *int       `yaml:"api_id" json:"api_id"`
	APIHash                string     `yaml:"api_hash" json:"api_hash"`
	StringSession          string     `yaml:"string_session" json:"string_session"`
	CheckPeriod            *float64   `yaml:"check_period" json:"check_period"`
	TargetChannel          channelRef `yaml:"target_channel" json:"target_channel"`
	FunnyCoefficient       *float64   `yaml:"funny_coefficient" json:"funny_coefficient"`
	PositiveReactions      []string   `yaml:"positive_reactions" json:"positive_reactions"`
	NegativeReactions      []string   `yaml:"negative_reactions" json:"negative_reactions"`
	SpreadingCoefficient   *float64   `yaml:"spreading_coefficient" json:"spreading_coefficient"`
	InvolvementCoefficient *float64   `yaml:"involvement_coefficient" json:"involvement_coefficient"`
	MemeAgeThreshold       *float64   `yaml:"meme_age_threshold" json:"meme_age_threshold"`
	MaxMessagesToSend      *int       `yaml:"max_messages_to_send" json:"max_messages_to_send"`
	SendInterval           *float64   `yaml:"send_interval" json:"send_interval"`
	MinSendGap             *float64   `yaml:"min_send_gap" json:"min_send_gap"`
	Folders                []string   `yaml:"folders" json:"folders"`
	HistoryDepth           *int       `yaml:"history_depth" json:"history_depth"`
	MetadataMaxAttempts    *int       `yaml:"metadata_max_attempts" json:"metadata_max_attempts"`
	IterationMaxAttempts   *int       `yaml:"iteration_max_attempts" json:"iteration_max_attempts"`
	IterationRetryDelay    *float64   `yaml:"iteration_retry_delay" json:"iteration_retry_delay"`
	SendMaxAttempts        *int       `yaml:"send_max_attempts" json:"send_max_attempts"`
	LedgerBackend          string     `yaml:"ledger_backend" json:"ledger_backend"`
	LedgerFile             string     `yaml:"ledger_file" json:"ledger_file"`
}

// channelRef is a username or a numeric chat id. Numbers are kept in their
// decimal form.
type channelRef string

func (c *channelRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = channelRef(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("target_channel must be a username or a numeric id")
	}
	id, err := n.Int64()
	if err != nil {
		return fmt.Errorf("target_channel must be an integer id, got %s", n)
	}
	*c = channelRef(strconv.FormatInt(id, 10))
	return nil
}

func (c *channelRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!float" {
		return fmt.Errorf("target_channel must be a username or an integer id, got %q", node.Value)
	}
	*c = channelRef(node.Value)
	return nil
}

// LoadAll reads the config file at path (JSON or YAML), applies environment
// overrides and validates the result.
func LoadAll(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse accepts a JSON object or a YAML document.
func Parse(raw []byte) (*Config, error) {
	var fc fileConfig
	if err := decode(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&fc); err != nil {
		return nil, err
	}

	if err := checkRequired(&fc); err != nil {
		return nil, err
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:         *fc.APIID,
			APIHash:       fc.APIHash,
			StringSession: fc.StringSession,
			TargetChannel: strings.TrimPrefix(string(fc.TargetChannel), "@"),
		},
		Scoring: ScoringConfig{
			FunnyCoefficient:       *fc.FunnyCoefficient,
			PositiveReactions:      fc.PositiveReactions,
			NegativeReactions:      fc.NegativeReactions,
			SpreadingCoefficient:   *fc.SpreadingCoefficient,
			InvolvementCoefficient: *fc.InvolvementCoefficient,
			MemeAgeThreshold:       seconds(fc.MemeAgeThreshold, 3600),
		},
		Quota: QuotaConfig{
			MaxMessagesToSend: intOr(fc.MaxMessagesToSend, 10),
			SendInterval:      seconds(fc.SendInterval, 3600),
			MinSendGap:        seconds(fc.MinSendGap, 10),
		},
		Scheduler: SchedulerConfig{
			CheckPeriod:  time.Duration(*fc.CheckPeriod * float64(time.Minute)),
			Folders:      fc.Folders,
			HistoryDepth: intOr(fc.HistoryDepth, 200),
		},
		Retry: RetryConfig{
			MetadataMaxAttempts:  intOr(fc.MetadataMaxAttempts, 5),
			IterationMaxAttempts: intOr(fc.IterationMaxAttempts, 3),
			IterationRetryDelay:  seconds(fc.IterationRetryDelay, 5),
			SendMaxAttempts:      intOr(fc.SendMaxAttempts, 3),
		},
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(getEnv("LEDGER_BACKEND", orDefault(fc.LedgerBackend, LedgerFile))),
			File:        getEnv("LEDGER_FILE", orDefault(fc.LedgerFile, "processed_messages.json")),
			PostgresURL: os.Getenv("POSTGRES_URL"),
			RedisKey:    os.Getenv("REDIS_LEDGER_KEY"),
		},
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if len(cfg.Scheduler.Folders) == 0 {
		cfg.Scheduler.Folders = []string{"memes"}
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}
	cfg.Redis = redisCfg

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// JSON goes through encoding/json: tab indentation and surrogate-pair
// escapes, both common in hand-edited config.json files, are not valid YAML.
func decode(raw []byte, fc *fileConfig) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return json.Unmarshal(trimmed, fc)
	}
	return yaml.Unmarshal(raw, fc)
}

func applyEnvOverrides(fc *fileConfig) error {
	if v := os.Getenv("TG_API_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid int for env TG_API_ID: %s", v)
		}
		fc.APIID = &id
	}
	if v := os.Getenv("TG_API_HASH"); v != "" {
		fc.APIHash = v
	}
	if v := os.Getenv("TG_STRING_SESSION"); v != "" {
		fc.StringSession = v
	}
	if v := os.Getenv("TARGET_CHANNEL"); v != "" {
		fc.TargetChannel = channelRef(v)
	}
	return nil
}

func checkRequired(fc *fileConfig) error {
	var errs []error
	missing := func(key string) {
		errs = append(errs, fmt.Errorf("missing required config key: %s", key))
	}

	if fc.APIID == nil {
		missing("api_id")
	}
	if fc.APIHash == "" {
		missing("api_hash")
	}
	if fc.StringSession == "" {
		missing("string_session")
	}
	if fc.CheckPeriod == nil {
		missing("check_period")
	}
	if fc.TargetChannel == "" {
		missing("target_channel")
	}
	if fc.FunnyCoefficient == nil {
		missing("funny_coefficient")
	}
	if len(fc.PositiveReactions) == 0 {
		missing("positive_reactions")
	}
	if len(fc.NegativeReactions) == 0 {
		missing("negative_reactions")
	}
	if fc.SpreadingCoefficient == nil {
		missing("spreading_coefficient")
	}
	if fc.InvolvementCoefficient == nil {
		missing("involvement_coefficient")
	}

	return errors.Join(errs...)
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(cfg.Scheduler.CheckPeriod > 0, "check_period must be > 0")
	check(cfg.Scoring.FunnyCoefficient >= 0 && cfg.Scoring.FunnyCoefficient <= 1, "funny_coefficient must be within [0,1]")
	check(cfg.Scoring.MemeAgeThreshold >= 0, "meme_age_threshold must be >= 0")
	check(cfg.Quota.MaxMessagesToSend > 0, "max_messages_to_send must be > 0")
	check(cfg.Quota.SendInterval > 0, "send_interval must be > 0")
	check(cfg.Quota.MinSendGap >= 0, "min_send_gap must be >= 0")
	check(cfg.Scheduler.HistoryDepth > 0, "history_depth must be > 0")
	check(cfg.Retry.MetadataMaxAttempts > 0, "metadata_max_attempts must be > 0")
	check(cfg.Retry.IterationMaxAttempts > 0, "iteration_max_attempts must be > 0")
	check(cfg.Retry.IterationRetryDelay >= 0, "iteration_retry_delay must be >= 0")
	check(cfg.Retry.SendMaxAttempts > 0, "send_max_attempts must be > 0")

	switch cfg.Ledger.Backend {
	case LedgerFile:
		check(cfg.Ledger.File != "", "ledger_file must not be empty")
	case LedgerRedis:
		check(cfg.Redis.Enabled, "REDIS_ADDR is required for the redis ledger backend")
	case LedgerPostgres:
		check(cfg.Ledger.PostgresURL != "", "POSTGRES_URL is required for the postgres ledger backend")
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend))
	}

	return errors.Join(errs...)
}

func seconds(v *float64, def float64) time.Duration {
	if v == nil {
		return time.Duration(def * float64(time.Second))
	}
	return time.Duration(*v * float64(time.Second))
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}
