package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig holds process-level settings.
type SysConfig struct {
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Type     string `yaml:"type"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode"` // development or production
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// WhatsAppConfig tunes the per-closer session behaviour.
type WhatsAppConfig struct {
	DeviceName     string        `yaml:"device_name"`
	IgnoreSelf     bool          `yaml:"ignore_self"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system"`
	Web      WebConfig      `yaml:"web"`
	Database DBConfig       `yaml:"database"`
	Logger   LogConfig      `yaml:"logger"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Location: "America/Sao_Paulo",
			Workdir:  "/var/wabridge",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Database: DBConfig{
			Type:     "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "wabridge",
			User:     "postgres",
			MaxConn:  50,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/wabridge/wabridge.log",
		},
		WhatsApp: WhatsAppConfig{
			DeviceName:     "Idealis CRM",
			ReconnectDelay: 5 * time.Second,
			ResyncInterval: 30 * time.Minute,
		},
	}
}

// LoadConfig reads the YAML config file when it exists and applies
// environment overrides on top of it.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultConfig()
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}
	setEnvValues(cfg)
	return cfg
}

// setEnvValues overrides configuration entries from WABRIDGE_* variables,
// mirroring the YAML structure.
func setEnvValues(cfg *AppConfig) {
	setEnvString("WABRIDGE_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvString("WABRIDGE_SYSTEM_LOCATION", &cfg.System.Location)

	setEnvString("WABRIDGE_WEB_HOST", &cfg.Web.Host)
	setEnvInt("WABRIDGE_WEB_PORT", &cfg.Web.Port)

	setEnvString("WABRIDGE_DB_TYPE", &cfg.Database.Type)
	setEnvString("WABRIDGE_DB_HOST", &cfg.Database.Host)
	setEnvInt("WABRIDGE_DB_PORT", &cfg.Database.Port)
	setEnvString("WABRIDGE_DB_NAME", &cfg.Database.Name)
	setEnvString("WABRIDGE_DB_USER", &cfg.Database.User)
	setEnvString("WABRIDGE_DB_PWD", &cfg.Database.Passwd)
	setEnvBool("WABRIDGE_DB_DEBUG", &cfg.Database.Debug)

	setEnvString("WABRIDGE_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBool("WABRIDGE_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvString("WABRIDGE_LOGGER_FILENAME", &cfg.Logger.Filename)

	setEnvString("WABRIDGE_WA_DEVICE_NAME", &cfg.WhatsApp.DeviceName)
	setEnvBool("WABRIDGE_WA_IGNORE_SELF", &cfg.WhatsApp.IgnoreSelf)
	setEnvDuration("WABRIDGE_WA_RECONNECT_DELAY", &cfg.WhatsApp.ReconnectDelay)
	setEnvDuration("WABRIDGE_WA_RESYNC_INTERVAL", &cfg.WhatsApp.ResyncInterval)
}

func setEnvString(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvInt(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

func setEnvBool(name string, val *bool) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

func setEnvDuration(name string, val *time.Duration) {
	if evalue := os.Getenv(name); evalue != "" {
		if d := cast.ToDuration(evalue); d > 0 {
			*val = d
		}
	}
}

// InitDirs creates the working directory layout.
func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.System.Workdir, 0o755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "data"), 0o755)
}
