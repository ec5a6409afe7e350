package config

import (
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig holds process-wide settings.
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WhatsappConfig controls the session gateway core.
type WhatsappConfig struct {
	// PairingTimeout bounds how long a session may sit in waiting_qr or
	// connecting before the watchdog marks it failed.
	PairingTimeout time.Duration `yaml:"pairing_timeout" json:"pairing_timeout"`
	// SendWorkers sizes the outbound message worker pool.
	SendWorkers int `yaml:"send_workers" json:"send_workers"`
	// QRSize is the rendered QR image edge length in pixels.
	QRSize int `yaml:"qr_size" json:"qr_size"`
	// LogRetention is how long message audit rows are kept.
	LogRetention time.Duration `yaml:"log_retention" json:"log_retention"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	Whatsapp WhatsappConfig `yaml:"whatsapp" json:"whatsapp"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "wagateway",
		Location: "America/Mexico_City",
		Workdir:  "/var/wagateway",
		Debug:    true,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 1820,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "wagateway",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  50,
		IdleConn: 10,
	},
	Whatsapp: WhatsappConfig{
		PairingTimeout: 2 * time.Minute,
		SendWorkers:    8,
		QRSize:         256,
		LogRetention:   90 * 24 * time.Hour,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/wagateway/wagateway.log",
	},
}

func LoadConfig(cfile string) *AppConfig {
	cfg := new(AppConfig)
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			if err := yaml.Unmarshal(data, cfg); err == nil {
				fillWhatsappDefaults(cfg)
				setEnvValues(cfg)
				return cfg
			}
		}
	}
	cfg = DefaultAppConfig
	setEnvValues(cfg)
	return cfg
}

// fillWhatsappDefaults backfills gateway settings a partial config file may
// omit. A zero pairing timeout would make the watchdog expire every handshake
// on its first sweep.
func fillWhatsappDefaults(cfg *AppConfig) {
	def := DefaultAppConfig.Whatsapp
	if cfg.Whatsapp.PairingTimeout <= 0 {
		cfg.Whatsapp.PairingTimeout = def.PairingTimeout
	}
	if cfg.Whatsapp.SendWorkers <= 0 {
		cfg.Whatsapp.SendWorkers = def.SendWorkers
	}
	if cfg.Whatsapp.QRSize <= 0 {
		cfg.Whatsapp.QRSize = def.QRSize
	}
	if cfg.Whatsapp.LogRetention <= 0 {
		cfg.Whatsapp.LogRetention = def.LogRetention
	}
}

// setEnvValues lets container deployments override file settings.
func setEnvValues(cfg *AppConfig) {
	setEnvStringValue("WAGATEWAY_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvStringValue("WAGATEWAY_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("WAGATEWAY_SYSTEM_DEBUG", &cfg.System.Debug)
	setEnvStringValue("WAGATEWAY_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("WAGATEWAY_WEB_PORT", &cfg.Web.Port)
	setEnvStringValue("WAGATEWAY_DB_TYPE", &cfg.Database.Type)
	setEnvStringValue("WAGATEWAY_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WAGATEWAY_DB_PORT", &cfg.Database.Port)
	setEnvStringValue("WAGATEWAY_DB_NAME", &cfg.Database.Name)
	setEnvStringValue("WAGATEWAY_DB_USER", &cfg.Database.User)
	setEnvStringValue("WAGATEWAY_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("WAGATEWAY_DB_DEBUG", &cfg.Database.Debug)
	setEnvIntValue("WAGATEWAY_WHATSAPP_SEND_WORKERS", &cfg.Whatsapp.SendWorkers)
	setEnvIntValue("WAGATEWAY_WHATSAPP_QR_SIZE", &cfg.Whatsapp.QRSize)
	setEnvDurationValue("WAGATEWAY_WHATSAPP_PAIRING_TIMEOUT", &cfg.Whatsapp.PairingTimeout)
	setEnvStringValue("WAGATEWAY_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("WAGATEWAY_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvStringValue("WAGATEWAY_LOGGER_FILENAME", &cfg.Logger.Filename)
}

func setEnvStringValue(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvIntValue(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

func setEnvBoolValue(name string, val *bool) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

func setEnvDurationValue(name string, val *time.Duration) {
	if evalue := os.Getenv(name); evalue != "" {
		if d := cast.ToDuration(evalue); d > 0 {
			*val = d
		}
	}
}
