package main

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"towbid/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-addr", "0.0.0.0:8080", "")
	pflag.String("transport", "loopback", "event channel transport, loopback or stream")
	pflag.Float64("buyer-premium-rate", 0.10, "")
	pflag.Int64("image-rate-limit-per-hour", 30, "")

	// auth config
	pflag.String("auth-secret", "", "")
	pflag.Duration("auth-token-ttl", 24*time.Hour, "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 0, "")
	pflag.String("redis-key-prefix", "towbid:", "")
	pflag.String("redis-stream-key", "towbid-event-stream", "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("TOWBID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerConfig: api.ServerConfig{
			Addr: viper.GetString("server-addr"),
			Auth: api.AuthConfig{
				Secret:   viper.GetString("auth-secret"),
				TokenTTL: viper.GetDuration("auth-token-ttl"),
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKey: viper.GetString("redis-stream-key"),
			},
			Transport:             viper.GetString("transport"),
			BuyerPremiumRate:      viper.GetFloat64("buyer-premium-rate"),
			ImageRateLimitPerHour: viper.GetInt64("image-rate-limit-per-hour"),
		},
	}
}

type Args struct {
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	config := args.ServerConfig
	if config.Addr == "" || config.Auth.Secret == "" {
		return false
	}
	if config.DB.Host == "" || config.DB.User == "" || config.DB.Database == "" {
		return false
	}
	if config.Transport == "stream" && config.Redis.Addr == "" {
		return false
	}
	return true
}
