package bootstrap

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "configs/promotion-indexer.yaml"

// Config 是服务的完整配置，yaml 文件打底，环境变量覆盖。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Indexer IndexerConfig `yaml:"indexer"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type MySQLConfig struct {
	Host         string            `yaml:"host"`
	Port         int               `yaml:"port"`
	User         string            `yaml:"user"`
	Password     string            `yaml:"password"`
	Database     string            `yaml:"database"`
	Params       map[string]string `yaml:"params"`
	MaxOpenConns int               `yaml:"max_open_conns"`
	MaxIdleConns int               `yaml:"max_idle_conns"`
}

// DSN 用 go-sql-driver 的 Config 拼接连接串。
func (c MySQLConfig) DSN() string {
	m := mysql.NewConfig()
	m.Net = "tcp"
	m.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	m.User = c.User
	m.Passwd = c.Password
	m.DBName = c.Database
	m.ParseTime = true
	// 状态表的条件更新按匹配行数判断是否成功
	m.ClientFoundRows = true
	m.Loc = time.UTC
	m.Params = c.Params
	return m.FormatDSN()
}

// RedisConfig Addrs 为空时不启用查询缓存。
type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig Brokers 为空时不启动事件消费者。
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
	GroupID     string   `yaml:"group_id"`
	DLTTopic    string   `yaml:"dlt_topic"`
}

// ZookeeperConfig Servers 为空时全量重建只在进程内互斥。
type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LockRoot       string        `yaml:"lock_root"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	// DataID 非空时启动时从配置中心拉取 yaml 覆盖本地配置。
	DataID string `yaml:"data_id"`
}

type IndexerConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	IndexZeroDiscounts bool          `yaml:"index_zero_discounts"`
	CurrencyPrecision  int32         `yaml:"currency_precision"`
	DefaultWebsiteID   int64         `yaml:"default_website_id"`
	StalePollInterval  time.Duration `yaml:"stale_poll_interval"`
	QueryCacheTTL      time.Duration `yaml:"query_cache_ttl"`
	FlushRetries       int           `yaml:"flush_retries"`
}

// DefaultConfig 返回本地开发可直接使用的默认值。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "promotion-indexer", Port: 8085, LogLevel: "info"},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				Host:         "localhost",
				Port:         3306,
				User:         "root",
				Database:     "magento",
				MaxOpenConns: 20,
				MaxIdleConns: 5,
			},
			Kafka: KafkaConfig{
				EventsTopic: "salesrule-entity-events",
				GroupID:     "promotion-indexer-group",
				DLTTopic:    "salesrule-entity-events-dlt",
			},
			Zookeeper: ZookeeperConfig{SessionTimeout: 10 * time.Second, LockRoot: "/distributed_locks"},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
		},
		Indexer: IndexerConfig{
			BatchSize:         1000,
			CurrencyPrecision: 2,
			DefaultWebsiteID:  1,
			StalePollInterval: time.Minute,
			QueryCacheTTL:     10 * time.Minute,
			FlushRetries:      3,
		},
	}
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回最近一次加载的配置，未加载时返回默认值。
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

func setCurrentConfig(c *Config) {
	current.Store(c)
}

// LoadConfig 读取 yaml 文件 (不存在时使用默认值)，再应用环境变量覆盖。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeYAML 用 yaml 内容覆盖已有配置，未出现的字段保持原值。
func (c *Config) MergeYAML(content []byte) error {
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return c.Validate()
}

// Validate 检查取值范围。
func (c *Config) Validate() error {
	switch {
	case c.App.Port <= 0:
		return fmt.Errorf("config: app.port must be positive, got %d", c.App.Port)
	case c.Indexer.BatchSize <= 0:
		return fmt.Errorf("config: indexer.batch_size must be positive, got %d", c.Indexer.BatchSize)
	case c.Indexer.CurrencyPrecision < 0:
		return fmt.Errorf("config: indexer.currency_precision must not be negative, got %d", c.Indexer.CurrencyPrecision)
	case c.Indexer.DefaultWebsiteID <= 0:
		return fmt.Errorf("config: indexer.default_website_id must be positive, got %d", c.Indexer.DefaultWebsiteID)
	case c.Indexer.FlushRetries < 0:
		return fmt.Errorf("config: indexer.flush_retries must not be negative, got %d", c.Indexer.FlushRetries)
	}
	return nil
}

func applyEnv(c *Config) {
	c.App.Port = getEnvInt("APP_PORT", c.App.Port)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)

	c.Infra.MySQL.Host = getEnv("MYSQL_HOST", c.Infra.MySQL.Host)
	c.Infra.MySQL.Port = getEnvInt("MYSQL_PORT", c.Infra.MySQL.Port)
	c.Infra.MySQL.User = getEnv("MYSQL_USER", c.Infra.MySQL.User)
	c.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", c.Infra.MySQL.Password)
	c.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", c.Infra.MySQL.Database)

	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", c.Infra.Redis.Addrs)
	c.Infra.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Zookeeper.Servers = getEnvList("ZK_SERVERS", c.Infra.Zookeeper.Servers)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)

	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	if c.Infra.Nacos.ServerAddrs != "" {
		c.Infra.Nacos.Enabled = getEnvBool("NACOS_ENABLED", c.Infra.Nacos.Enabled)
	}
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
