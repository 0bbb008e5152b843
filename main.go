package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"towbid/adapters/auth"
	"towbid/adapters/eventbus"
	internalS3 "towbid/adapters/s3"
	"towbid/adapters/store"
	"towbid/api"
	"towbid/models"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	config := args.ServerConfig

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		panic(err)
	}

	// 初始化Redis連線，沒設定時出價直接走資料庫交易
	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
	}

	// 初始化事件頻道
	var transport eventbus.Transport
	switch config.Transport {
	case "stream":
		streamTransport, err := eventbus.NewStreamTransport(redisClient, config.Redis.StreamKey)
		if err != nil {
			panic(err)
		}
		transport = streamTransport
	default:
		transport = eventbus.NewLoopback()
	}
	bus, err := eventbus.NewChannel(transport)
	if err != nil {
		panic(err)
	}

	// 初始化權威儲存，通知在交易提交後推上頻道
	storeOpts := []store.Option{
		store.WithBuyerPremiumRate(decimal.NewFromFloat(config.BuyerPremiumRate)),
		store.WithNotifier(func(n models.Notification) {
			event := eventbus.NotificationEvent{
				UserID:  n.UserID,
				Type:    string(n.Type),
				Title:   n.Title,
				Message: n.Message,
			}
			if n.RelatedID != nil {
				event.RelatedID = n.RelatedID.String()
			}
			if err := bus.Send(eventbus.TopicNotification, event); err != nil {
				slog.Warn("Fail to publish notification event", slog.Any("error", err))
			}
		}),
	}
	if redisClient != nil {
		storeOpts = append(storeOpts, store.WithRedis(redisClient, config.Redis.KeyPrefix))
	}
	authoritativeStore, err := store.New(db, storeOpts...)
	if err != nil {
		panic(err)
	}
	if err := authoritativeStore.AutoMigrate(); err != nil {
		panic(err)
	}

	// 初始化認證提供者
	authProvider, err := auth.NewProvider(db, []byte(config.Auth.Secret),
		auth.WithProviderTokenTTL(config.Auth.TokenTTL))
	if err != nil {
		panic(err)
	}

	// 初始化S3上傳器，沒設定bucket時停用上傳相關端點
	var uploader *internalS3.Uploader
	if config.S3.Bucket != "" {
		s3Cfg, err := awsCfg.LoadDefaultConfig(
			context.Background(),
			awsCfg.WithBaseEndpoint(config.S3.Endpoint),
			awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
			awsCfg.WithRegion("auto"),
		)
		if err != nil {
			panic(err)
		}
		uploader, err = internalS3.NewUploader(awsS3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
		if err != nil {
			panic(err)
		}
	}

	server, err := api.NewServer(config, api.Dependencies{
		Store:    authoritativeStore,
		Auth:     authProvider,
		Uploader: uploader,
		Bus:      bus,
	})
	if err != nil {
		panic(err)
	}

	// 收到終止訊號時優雅關閉
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("Shutting down")
		server.Close()
	}()

	if err := server.Start(); err != nil {
		panic(err)
	}
}
