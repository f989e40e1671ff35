package common

import (
	"github.com/APTrust/evidence-services/network"
	"github.com/APTrust/evidence-services/util/logger"
	"github.com/op/go-logging"
)

// Context bundles the config, logger and network clients that every
// evidence service needs.
type Context struct {
	Config      *Config
	Logger      *logging.Logger
	NSQClient   *network.NSQClient
	RedisClient *network.RedisClient
	Uploader    *network.EvidenceUploader
}

func NewContext() *Context {
	return NewContextFromConfig(NewConfig())
}

// NewContextFromConfig builds a context around an already loaded config.
// Network clients are lazy, so this does not contact Redis, NSQ or S3.
func NewContextFromConfig(config *Config) *Context {
	_logger := getLogger(config)
	return &Context{
		Config:      config,
		Logger:      _logger,
		NSQClient:   getNsqClient(config),
		RedisClient: getRedisClient(config),
		Uploader:    getUploader(config, _logger),
	}
}

func getLogger(config *Config) *logging.Logger {
	log, _ := logger.InitLogger(config.LogDir, config.LogLevel)
	return log
}

func getNsqClient(config *Config) *network.NSQClient {
	return network.NewNSQClient(config.NsqURL)
}

func getRedisClient(config *Config) *network.RedisClient {
	return network.NewRedisClient(
		config.RedisURL,
		config.RedisPassword,
		config.RedisDefaultDB)
}

func getUploader(config *Config, log *logging.Logger) *network.EvidenceUploader {
	if config.S3Credentials.Host == "" {
		return nil
	}
	creds := config.S3Credentials
	uploader, err := network.NewEvidenceUploader(
		creds.Host,
		creds.KeyID,
		creds.SecretKey,
		creds.UseSSL,
		config.EvidenceBucket,
		log)
	if err != nil {
		panic(err)
	}
	return uploader
}
