package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var ErrMissingCredentials = errors.New("homgar username and password are required")

type Config struct {
	HomgarCfg *HomgarConfig
	MqttCfg   *MqttConfig
	DBCfg     *DBConfig
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"INFO"`
}

type HomgarConfig struct {
	Username            string        `env:"HOMGAR_USERNAME"`
	Password            string        `env:"HOMGAR_PASSWORD"`
	AreaCode            string        `env:"HOMGAR_AREA_CODE" envDefault:"31"`
	BaseURL             string        `env:"HOMGAR_BASE_URL" envDefault:"https://region3.homgarus.com"`
	FlowMeterModelCodes []int         `env:"HOMGAR_FLOW_METER_MODEL_CODES" envDefault:"297" envSeparator:","`
	MinPollInterval     time.Duration `env:"POLL_MIN_INTERVAL" envDefault:"120s"`
	PollSchedule        string        `env:"POLL_SCHEDULE" envDefault:"@every 30s"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RequestInterval     time.Duration `env:"REQUEST_INTERVAL" envDefault:"200ms"`
	CacheFile           string        `env:"CACHE_FILE"`
}

type MqttConfig struct {
	Host     string `env:"MQTT_HOST"`
	Username string `env:"MQTT_USER"`
	Password string `env:"MQTT_PASS"`
}

type DBConfig struct {
	URL              string        `env:"DATABASE_URL"`
	MigrationsFolder string        `env:"MIGRATIONS_FOLDER" envDefault:"migrations"`
	CleanupSchedule  string        `env:"DB_CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
	Retention        time.Duration `env:"DB_RETENTION" envDefault:"720h"`
}

// credentialsFile is the YAML credentials format of the demo tool.
type credentialsFile struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load reads the environment and, when credentialsPath is set, overrides the
// credentials with the ones from that YAML file.
func Load(credentialsPath string) (*Config, error) {
	cfg := &Config{
		HomgarCfg: &HomgarConfig{},
		MqttCfg:   &MqttConfig{},
		DBCfg:     &DBConfig{},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, err
		}
		creds := credentialsFile{}
		if err := yaml.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", credentialsPath, err)
		}
		if creds.Email != "" {
			cfg.HomgarCfg.Username = creds.Email
		}
		if creds.Password != "" {
			cfg.HomgarCfg.Password = creds.Password
		}
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HomgarCfg == nil || c.HomgarCfg.Username == "" || c.HomgarCfg.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}
