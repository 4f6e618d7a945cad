package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	PDL        PDLConfig        `yaml:"pdl"`
	Employment EmploymentConfig `yaml:"employment"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ServerConfig は HTTP API と gRPC ヘルスチェックの待ち受け設定です。
type ServerConfig struct {
	GRPCListenAddr    string        `yaml:"grpc_listen_addr"`
	HTTPListenAddr    string        `yaml:"http_listen_addr"`
	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// KafkaConfig は nl-request / nl-response トピックの設定です。
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	RequestTopic  string   `yaml:"request_topic"`
	ResponseTopic string   `yaml:"response_topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// PDLConfig は人物レジストリ (PDL) の設定です。
type PDLConfig struct {
	URL          string        `yaml:"url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Scope        string        `yaml:"scope"`
	Timeout      time.Duration `yaml:"-"`
	TimeoutRaw   string        `yaml:"timeout"`
}

// EmploymentConfig は雇用関係 API の設定です。
type EmploymentConfig struct {
	URL        string        `yaml:"url"`
	Scope      string        `yaml:"scope"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// RedisConfig は表示名キャッシュの設定です。Addr が空の場合キャッシュは無効です。
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	NameTTL    time.Duration `yaml:"-"`
	NameTTLRaw string        `yaml:"name_ttl"`
}

// LoggingConfig はロガーの設定です。
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TracingConfig は OTLP トレースエクスポーターの設定です。Endpoint が空の場合エクスポートしません。
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
// ファイル内の ${VAR} は環境変数で展開されます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if err := c.Server.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Kafka.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.PDL.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Employment.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Redis.validateAndNormalize(); err != nil {
		return err
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: tracing.sample_ratio must be between 0 and 1")
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

func (s *ServerConfig) validateAndNormalize() error {
	if s.HTTPListenAddr == "" {
		return fmt.Errorf("config: server.http_listen_addr must be set")
	}
	if s.GRPCListenAddr == "" {
		return fmt.Errorf("config: server.grpc_listen_addr must be set")
	}

	timeout, err := parseDurationAllowEmpty(s.RequestTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: server.request_timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.RequestTimeout = timeout
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (k *KafkaConfig) validateAndNormalize() error {
	brokers := make([]string, 0, len(k.Brokers))
	for _, b := range k.Brokers {
		for _, part := range strings.Split(b, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				brokers = append(brokers, trimmed)
			}
		}
	}
	if len(brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must be set")
	}
	k.Brokers = brokers

	if k.RequestTopic == "" {
		return fmt.Errorf("config: kafka.request_topic must be set")
	}
	if k.ResponseTopic == "" {
		return fmt.Errorf("config: kafka.response_topic must be set")
	}
	if k.ConsumerGroup == "" {
		k.ConsumerGroup = "nearest-leader"
	}
	return nil
}

func (p *PDLConfig) validateAndNormalize() error {
	if p.URL == "" {
		return fmt.Errorf("config: pdl.url must be set")
	}
	if p.TokenURL == "" {
		return fmt.Errorf("config: pdl.token_url must be set")
	}
	if p.ClientID == "" {
		return fmt.Errorf("config: pdl.client_id must be set")
	}

	timeout, err := parseDurationAllowEmpty(p.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: pdl.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	p.Timeout = timeout
	return nil
}

func (e *EmploymentConfig) validateAndNormalize() error {
	if e.URL == "" {
		return fmt.Errorf("config: employment.url must be set")
	}

	timeout, err := parseDurationAllowEmpty(e.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: employment.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	e.Timeout = timeout
	return nil
}

func (r *RedisConfig) validateAndNormalize() error {
	ttl, err := parseDurationAllowEmpty(r.NameTTLRaw)
	if err != nil {
		return fmt.Errorf("config: redis.name_ttl: %w", err)
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	r.NameTTL = ttl
	return nil
}

// Enabled はキャッシュが設定されているかを返します。
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
