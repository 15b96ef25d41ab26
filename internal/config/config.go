package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Signal   Signal   `mapstructure:"signal"`
	Auth     Auth     `mapstructure:"auth"`
	Presence Presence `mapstructure:"presence"`
	Store    Store    `mapstructure:"store"`
	Relay    Relay    `mapstructure:"relay"`
}

type Signal struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	// Backpressure is "drop" or "kick".
	Backpressure string `mapstructure:"backpressure"`
}

type Auth struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type Presence struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type Store struct {
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type Relay struct {
	Workers        int           `mapstructure:"workers"`
	Placement      string        `mapstructure:"placement"`
	AnnouncedIP    string        `mapstructure:"announced_ip"`
	UDPPort        int           `mapstructure:"udp_port"`
	PortMin        uint16        `mapstructure:"port_min"`
	PortMax        uint16        `mapstructure:"port_max"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")

	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.rate_limit", 20)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("signal.backpressure", "kick")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("presence.grace_period", "5s")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.uri", "")
	v.SetDefault("store.database", "huddle")

	v.SetDefault("relay.workers", 1)
	v.SetDefault("relay.placement", "least_loaded")
	v.SetDefault("relay.announced_ip", "")
	v.SetDefault("relay.udp_port", 0)
	v.SetDefault("relay.port_min", 40000)
	v.SetDefault("relay.port_max", 49999)
	v.SetDefault("relay.ice_servers", []string{})
	v.SetDefault("relay.connect_timeout", "30s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, then HUDDLE_* environment
// variables, which may come from a .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		fmt.Println("✅ Loaded .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Store: %s | Relay workers: %d\n",
		cfg.Mode, cfg.Port, cfg.Store.Driver, cfg.Relay.Workers)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required (HUDDLE_AUTH_SECRET)")
	}
	if c.Secret == "" {
		c.Secret = c.Auth.Secret
	}
	if c.Relay.Workers < 1 {
		return fmt.Errorf("relay.workers must be at least 1, got %d", c.Relay.Workers)
	}
	if c.Relay.PortMax < c.Relay.PortMin {
		return fmt.Errorf("relay.port_max %d below relay.port_min %d", c.Relay.PortMax, c.Relay.PortMin)
	}
	return nil
}

// AnnouncedIPs returns the NAT 1:1 addresses for host candidates.
func (r Relay) AnnouncedIPs() []string {
	if r.AnnouncedIP == "" {
		return nil
	}
	var out []string
	for _, ip := range strings.Split(r.AnnouncedIP, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			out = append(out, ip)
		}
	}
	return out
}

// Level parses log_level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
