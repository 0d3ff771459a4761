package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campus_chat_server/internal/config"
	dao "campus_chat_server/internal/dao/mysql"
	myredis "campus_chat_server/internal/dao/redis"
	"campus_chat_server/internal/handler"
	"campus_chat_server/internal/https_server"
	"campus_chat_server/internal/infrastructure/logger"
	"campus_chat_server/internal/service"
	"campus_chat_server/internal/service/auth"
	"campus_chat_server/internal/service/chat"
	"campus_chat_server/pkg/util/jwt"
	"campus_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库
	db, repos := dao.Init()
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// 4. 初始化缓存，redis 广播模式下即使缓存走本地也需要客户端
	cache, redisClient := myredis.Init(ctx)
	if redisClient == nil && conf.KafkaConfig.MessageMode == chat.ModeRedis {
		redisClient = myredis.NewClient(&conf.RedisConfig)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 5. 初始化 JWT、雪花 ID 和参数校验翻译
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry)
	snowflake.Init()
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("init validator translator failed", zap.Error(err))
	}

	// 6. 推送层：订阅表 + 中继
	chatServer, err := chat.NewChatServer(chat.ChatServerConfig{Kafka: conf.KafkaConfig, Redis: redisClient})
	if err != nil {
		zap.L().Fatal("init chat server failed", zap.Error(err))
	}
	defer chatServer.Close()

	// 7. Service 层 (依赖注入)，推送层同时承担提交后的广播和订阅撤销
	svc := service.NewServices(repos, cache, chatServer, chatServer)
	chatServer.SetMemberLister(svc.ChatRoom)

	// 8. HTTP 与 WebSocket 入口
	resolver := auth.NewJWTResolver()
	gateway := chat.NewWsGateway(chatServer.Hub, resolver, svc.ChatRoom, svc.Message, conf.WsConfig)
	engine := https_server.Init(conf, handler.NewHandlers(svc, gateway), resolver)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler: engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("chat broker started", zap.String("mode", conf.KafkaConfig.MessageMode))
		return chatServer.Start(gctx)
	})
	g.Go(func() error {
		zap.L().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("关闭服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("server exited with error", zap.Error(err))
		return
	}
	zap.L().Info("服务器已关闭")
}
