package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"EduTask/pkg/util"
	"EduTask/pkg/zlog"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/config_local.toml"
	envConfigPath     = "EDUTASK_CONFIG"
)

type MainConfig struct {
	AppName  string `toml:"appName"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	ForceTLS bool   `toml:"forceTLS"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath    string `toml:"logPath"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
}

type JwtConfig struct {
	Key         string `toml:"key"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	NotifyTopic     string   `toml:"notifyTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
}

// 跨进程转发方式
const (
	RelayNone  = "none"
	RelayRedis = "redis"
	RelayKafka = "kafka"
)

// NotifyConfig 服务端推送通道配置
type NotifyConfig struct {
	// NodeID 节点标识，需在重启之间保持不变；为空时取主机名
	NodeID         string   `toml:"nodeId"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowedOrigins"`
	SendBuffer     int      `toml:"sendBuffer"`
	MaxMessageSize int64    `toml:"maxMessageSize"`
	WriteWait      Duration `toml:"writeWait"`
	PongWait       Duration `toml:"pongWait"`
	PingPeriod     Duration `toml:"pingPeriod"`
	Relay          string   `toml:"relay"`
	RedisChannel   string   `toml:"redisChannel"`
	PresenceKey    string   `toml:"presenceKey"`
	PresenceTTL    Duration `toml:"presenceTTL"`
	StatsCron      string   `toml:"statsCron"`
	AuditEnabled   bool     `toml:"auditEnabled"`
}

// ReconnectConfig 客户端重连策略，Multiplier=1 即固定间隔
type ReconnectConfig struct {
	InitialDelay Duration `toml:"initialDelay"`
	Multiplier   float64  `toml:"multiplier"`
	MaxDelay     Duration `toml:"maxDelay"`
	MaxAttempts  int      `toml:"maxAttempts"`
	Jitter       float64  `toml:"jitter"`
}

type ClientConfig struct {
	Origin    string          `toml:"origin"`
	Path      string          `toml:"path"`
	Token     string          `toml:"token"`
	UserID    string          `toml:"userId"`
	Reconnect ReconnectConfig `toml:"reconnect"`
}

type Config struct {
	MainConfig   `toml:"mainConfig"`
	MysqlConfig  `toml:"mysqlConfig"`
	JwtConfig    `toml:"jwtConfig"`
	LogConfig    `toml:"logConfig"`
	RedisConfig  `toml:"redisConfig"`
	KafkaConfig  `toml:"kafkaConfig"`
	NotifyConfig `toml:"notifyConfig"`
	ClientConfig `toml:"clientConfig"`
}

// Duration 支持 "3s"、"500ms" 形式
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load 读取指定路径，未设置的字段使用默认值
func Load(path string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, err
	}
	conf.applyDefaults()
	return conf, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	conf := new(Config)
	conf.applyDefaults()
	return conf
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "EduTask"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8080
	}
	if c.JwtConfig.ExpireHours <= 0 {
		c.JwtConfig.ExpireHours = 24
	}
	if c.JwtConfig.Issuer == "" {
		c.JwtConfig.Issuer = c.AppName
	}

	n := &c.NotifyConfig
	if n.NodeID == "" {
		n.NodeID = defaultNodeID()
	}
	if n.Path == "" {
		n.Path = "/ws"
	}
	if n.SendBuffer <= 0 {
		n.SendBuffer = 64
	}
	if n.MaxMessageSize <= 0 {
		n.MaxMessageSize = 1 << 16
	}
	if n.WriteWait.Duration <= 0 {
		n.WriteWait.Duration = 10 * time.Second
	}
	if n.PongWait.Duration <= 0 {
		n.PongWait.Duration = 60 * time.Second
	}
	if n.PingPeriod.Duration <= 0 || n.PingPeriod.Duration >= n.PongWait.Duration {
		n.PingPeriod.Duration = n.PongWait.Duration * 9 / 10
	}
	if n.Relay == "" {
		n.Relay = RelayNone
	}
	if n.RedisChannel == "" {
		n.RedisChannel = "edutask:notify"
	}
	if n.PresenceKey == "" {
		n.PresenceKey = "edutask:presence"
	}
	if n.PresenceTTL.Duration <= 0 {
		n.PresenceTTL.Duration = 5 * time.Minute
	}
	if n.StatsCron == "" {
		n.StatsCron = "@every 1m"
	}

	k := &c.KafkaConfig
	if k.NotifyTopic == "" {
		k.NotifyTopic = "edutask.notifications"
	}
	if k.ClientID == "" {
		k.ClientID = c.AppName
	}

	cl := &c.ClientConfig
	if cl.Path == "" {
		cl.Path = n.Path
	}
	r := &cl.Reconnect
	if r.InitialDelay.Duration <= 0 {
		r.InitialDelay.Duration = 3 * time.Second
	}
	if r.Multiplier < 1 {
		r.Multiplier = 1
	}
	if r.Jitter < 0 {
		r.Jitter = 0
	}
}

var hostname = os.Hostname

func defaultNodeID() string {
	if h, err := hostname(); err == nil && strings.TrimSpace(h) != "" {
		return strings.TrimSpace(h)
	}
	return "node-" + util.GenerateUUID()
}

var (
	config *Config
	once   sync.Once
)

// GetConfig 进程级配置，路径可由 EDUTASK_CONFIG 覆盖；读取失败时退回默认值
func GetConfig() *Config {
	once.Do(func() {
		path := os.Getenv(envConfigPath)
		if path == "" {
			path = defaultConfigPath
		}
		conf, err := Load(path)
		if err != nil {
			zlog.Warn("load config failed, using defaults", zap.String("path", path), zap.Error(err))
			conf = Default()
		}
		config = conf
	})
	return config
}
