package api

import "time"

type ServerConfig struct {
	Addr  string
	Auth  AuthConfig
	S3    S3Config
	DB    DBConfig
	Redis RedisConfig

	// Transport 選擇事件頻道的底層，"loopback" 或 "stream"
	Transport string
	// BuyerPremiumRate 結帳時的買家佣金比例，例如 0.10
	BuyerPremiumRate float64
	// ImageRateLimitPerHour 每位使用者每小時可上傳的圖片數，0 表示不限制
	ImageRateLimitPerHour int64
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	StreamKey string
}
