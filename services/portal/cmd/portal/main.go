package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"tonygamingtz/internal/servicetoken"
	"tonygamingtz/internal/util"
	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/notify"
	"tonygamingtz/pkg/queue"
	"tonygamingtz/pkg/relay"
	"tonygamingtz/pkg/sms"
	"tonygamingtz/pkg/storage"
	"tonygamingtz/pkg/store"
	"tonygamingtz/services/portal/internal/app"
	"tonygamingtz/services/portal/internal/config"
	"tonygamingtz/services/portal/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	refreshTTL, err := config.ParseTTL(cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("failed to parse refresh TTL: %v", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	appCore, err := app.New(app.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		JWTSecret:     cfg.JWTSecret,
		SessionTTL:    sessionTTL,
		RefreshTTL:    refreshTTL,
		Store:         dataStore,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	hub := relay.NewHub(relay.DefaultVisibility(), rdb)
	go hub.Run(ctx)
	presence := relay.NewPresence(rdb)

	feed := notify.NewInAppFeed()
	channels := []notify.Channel{notify.NewStoreChannel(dataStore), feed}
	if cfg.AMQPURL != "" {
		push, err := notify.NewAMQPPush(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init amqp push channel: %v", err)
		}
		defer push.Close()
		channels = append(channels, push)
	}
	dispatcher := notify.NewDispatcher(channels...)

	relayOpts := []relay.Option{
		relay.WithPublisher(hub),
		relay.WithNotifier(&messageNotifier{dispatcher: dispatcher}),
	}
	if cfg.MinioEndpoint != "" {
		files, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
		relayOpts = append(relayOpts, relay.WithFileStore(files))
	}
	messageRelay := relay.New(dataStore, relayOpts...)

	var sender sms.Sender = sms.NoopSender{}
	if cfg.SMSAccessKeyID != "" {
		aliyun, err := sms.NewAliyunSender(sms.AliyunConfig{
			AccessKeyID:     cfg.SMSAccessKeyID,
			AccessKeySecret: cfg.SMSAccessKeySecret,
			SignName:        cfg.SMSSignName,
			CodeTemplate:    cfg.SMSCodeTemplate,
			TextTemplate:    cfg.SMSTextTemplate,
		})
		if err != nil {
			log.Fatalf("failed to init sms sender: %v", err)
		}
		sender = aliyun
	}
	smsStream := cfg.SMSStream
	if smsStream == "" {
		smsStream = "tgtz:sms:outbound"
	}
	smsQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   smsStream,
		Group:    "portal",
	})
	if err != nil {
		log.Fatalf("failed to init sms queue: %v", err)
	}
	smsService := sms.NewService(dataStore, smsQueue, sender)
	smsQueue.Start(ctx, 2, smsService.HandleJob)

	var webhookVerifier *servicetoken.Verifier
	if cfg.WebhookPublicKey != "" {
		webhookVerifier, err = servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
			PublicKeyPath:  cfg.WebhookPublicKey,
			Audience:       "portal",
			AllowedIssuers: cfg.WebhookIssuers,
		})
		if err != nil {
			log.Fatalf("failed to init webhook verifier: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		Relay:                    messageRelay,
		Hub:                      hub,
		Presence:                 presence,
		Dispatcher:               dispatcher,
		Feed:                     feed,
		Store:                    dataStore,
		SMS:                      smsService,
		Sender:                   sender,
		WebhookVerifier:          webhookVerifier,
		ContentDomain:            cfg.ContentDomain,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		TrustedProxies:           cfg.TrustedProxies,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		OTPRateLimitPerMinute:    cfg.OTPRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("portal server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// messageNotifier raises an in-app/push notification for each stored
// message so recipients hear about relay activity while away.
type messageNotifier struct {
	dispatcher *notify.Dispatcher
}

func (n *messageNotifier) MessageStored(ctx context.Context, msg domain.Message) {
	body := msg.Text
	if body == "" {
		body = "sent an attachment"
	}
	_, err := n.dispatcher.Dispatch(ctx, msg.RecipientID, domain.Notification{
		Title: msg.SenderName,
		Body:  body,
		Payload: map[string]string{
			"messageId": msg.ID,
			"senderId":  msg.SenderID,
		},
	})
	if err != nil {
		slog.Warn("message notification failed", "err", err, "message_id", msg.ID)
	}
}
