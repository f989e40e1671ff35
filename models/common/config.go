package common

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/util"
	"github.com/op/go-logging"
	"github.com/spf13/viper"
)

type S3Credentials struct {
	Host      string
	KeyID     string
	SecretKey string `json:"-"`
	UseSSL    bool
}

type Config struct {
	AppVersion         string
	ConfigName         string
	EvidenceBucket     string
	EvidenceDir        string
	ExportDir          string
	LogDir             string
	LogLevel           logging.Level
	NsqLookupd         string
	NsqURL             string
	NTPServers         []string
	NTPTimeout         time.Duration
	QueueInterval      time.Duration
	RedisDefaultDB     int
	RedisPassword      string `json:"-"`
	RedisURL           string
	S3Credentials      S3Credentials
	SiegfriedSignature string
	SigningKeyPath     string
	TSATimeout         time.Duration
	TSAURLs            []string
}

var logLevels = map[string]logging.Level{
	"CRITICAL": logging.CRITICAL,
	"ERROR":    logging.ERROR,
	"WARNING":  logging.WARNING,
	"NOTICE":   logging.NOTICE,
	"INFO":     logging.INFO,
	"DEBUG":    logging.DEBUG,
}

// Returns a new config based on ENV vars APT_CONFIG_DIR and
// APT_EVIDENCE_CONFIG. This panics if the config can't be loaded,
// because none of our services can do anything useful without it.
func NewConfig() *Config {
	configDir, envName := getEnvVars()
	config, err := LoadConfig(configDir, envName)
	if err != nil {
		panic(fmt.Errorf("Fatal error config file: %s \n", err))
	}
	config.makeDirs()
	return config
}

// LoadConfig loads settings from the file .env.<envName> in configDir.
func LoadConfig(configDir, envName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configDir)
	v.SetConfigName(".env." + envName)
	v.SetConfigType("env")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("NTP_TIMEOUT", "5s")
	v.SetDefault("TSA_TIMEOUT", "10s")
	v.SetDefault("APP_VERSION", "1.0")
	v.SetDefault("QUEUE_INTERVAL", "1m")
	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}
	config := &Config{
		AppVersion:     v.GetString("APP_VERSION"),
		ConfigName:     envName,
		EvidenceBucket: v.GetString("EVIDENCE_BUCKET"),
		EvidenceDir:    v.GetString("EVIDENCE_DIR"),
		ExportDir:      v.GetString("EXPORT_DIR"),
		LogDir:         v.GetString("LOG_DIR"),
		LogLevel:       logLevels[strings.ToUpper(v.GetString("LOG_LEVEL"))],
		NsqLookupd:     v.GetString("NSQ_LOOKUPD"),
		NsqURL:         v.GetString("NSQ_URL"),
		NTPServers:     splitList(v.GetString("NTP_SERVERS"), constants.DefaultNTPServers),
		NTPTimeout:     v.GetDuration("NTP_TIMEOUT"),
		QueueInterval:  v.GetDuration("QUEUE_INTERVAL"),
		RedisDefaultDB: v.GetInt("REDIS_DEFAULT_DB"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisURL:       v.GetString("REDIS_URL"),
		S3Credentials: S3Credentials{
			Host:      v.GetString("S3_HOST"),
			KeyID:     v.GetString("S3_KEY"),
			SecretKey: v.GetString("S3_SECRET"),
			UseSSL:    v.GetBool("S3_USE_SSL"),
		},
		SiegfriedSignature: v.GetString("SIEGFRIED_SIGNATURE"),
		SigningKeyPath:     v.GetString("SIGNING_KEY_PATH"),
		TSATimeout:         v.GetDuration("TSA_TIMEOUT"),
		TSAURLs:            splitList(v.GetString("TSA_URLS"), constants.DefaultTSAURLs),
	}
	if err = config.expandPaths(); err != nil {
		return nil, err
	}
	return config, config.sanityCheck()
}

// ToJSON serializes the config, omitting passwords and secret keys.
func (c *Config) ToJSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}

func getEnvVars() (string, string) {
	configDir := getRequiredEnvVar("APT_CONFIG_DIR")
	envName := getRequiredEnvVar("APT_EVIDENCE_CONFIG")
	return configDir, envName
}

func getRequiredEnvVar(varName string) string {
	value := os.Getenv(varName)
	if value == "" {
		panic(fmt.Sprintf("Required env var %s not set", varName))
	}
	return value
}

// splitList splits a comma-separated setting. Order matters here,
// since servers are tried first to last.
func splitList(value string, defaults []string) []string {
	list := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		list = append(list, defaults...)
	}
	return list
}

// Expand ~ to home dir in path settings.
func (c *Config) expandPaths() (err error) {
	paths := []*string{
		&c.EvidenceDir,
		&c.ExportDir,
		&c.LogDir,
		&c.SiegfriedSignature,
		&c.SigningKeyPath,
	}
	for _, p := range paths {
		if *p, err = util.ExpandTilde(*p); err != nil {
			return err
		}
	}
	return nil
}

// Timeouts are hard deadlines on network calls. Zero or negative
// values would mean no deadline at all, which we never allow.
func (c *Config) sanityCheck() error {
	if c.NTPTimeout <= 0 {
		return fmt.Errorf("NTP_TIMEOUT must be greater than zero")
	}
	if c.TSATimeout <= 0 {
		return fmt.Errorf("TSA_TIMEOUT must be greater than zero")
	}
	return nil
}

func (c *Config) makeDirs() {
	dirs := []string{
		c.EvidenceDir,
		c.ExportDir,
		c.LogDir,
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			panic(err)
		}
	}
}
