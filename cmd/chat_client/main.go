package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat_sync_client/internal/chat/app"
	"chat_sync_client/internal/chat/domain"
	"chat_sync_client/internal/chat/repository"
	"chat_sync_client/pkg/config"
	"chat_sync_client/pkg/database"
	"chat_sync_client/pkg/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	var (
		chatroomID = pflag.StringP("chatroom", "c", "", "chatroom to open")
		list       = pflag.BoolP("list", "l", false, "list chatrooms and exit")
		create     = pflag.StringSlice("create", nil, "create a chatroom with these member ids and exit")
		remove     = pflag.String("delete", "", "delete a chatroom and exit")
		debug      = pflag.Bool("debug", false, "enable debug log")
	)
	pflag.Parse()

	logger.Log = logger.Initialize(config.EnvConfig.ChatClient, config.EnvConfig.ChatClientLogPath)
	logger.Log.SetDebugMode(*debug)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.Client](config.EnvConfig.ChatClient, config.EnvConfig.ChatClientYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokenSource := repository.StaticToken(config.EnvConfig.Token)

	// 1. 歷史訊息來源
	history, cleanup := newHistory(ctx, cfg, tokenSource)
	defer cleanup()

	// 2. 即時訊息連線
	feed, cleanupFeed := newLiveFeed(ctx, cfg)
	defer cleanupFeed()

	// 3. 初始化 UseCases
	syncer := app.NewSynchronizer(history, feed, app.Options{
		PageSize:       cfg.History.PageSize,
		SortKey:        cfg.History.SortKey,
		SortDir:        cfg.History.SortDir,
		OptimisticEcho: cfg.OptimisticEcho,
		WatchBuffer:    cfg.WatchBuffer,
	})
	defer syncer.Close()
	roomUC := app.NewRoomUseCase(repository.NewRestRoomRepository(cfg.APIBaseURL, cfg.HTTPTimeout, tokenSource), syncer)

	if err := syncer.Connect(ctx, config.EnvConfig.Token); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			logger.Log.Fatal("token rejected", zap.Error(err))
		}
		// 離線時仍可讀歷史訊息, feed 會自己重連
		logger.Log.Warn("live feed unavailable", zap.Error(err))
	}

	switch {
	case *list:
		printChatrooms(ctx, roomUC)
		return
	case len(*create) > 0:
		room, err := roomUC.CreateChatroom(ctx, *create)
		if err != nil {
			logger.Log.Fatal("create chatroom", zap.Error(err))
		}
		if room != nil {
			fmt.Printf("created chatroom %s %v\n", room.ChatroomID, room.Participants)
		}
		return
	case *remove != "":
		if err := roomUC.DeleteChatroom(ctx, *remove); err != nil {
			logger.Log.Fatal("delete chatroom", zap.Error(err))
		}
		fmt.Printf("deleted chatroom %s\n", *remove)
		return
	case *chatroomID == "":
		printChatrooms(ctx, roomUC)
		return
	}

	runChatroom(ctx, syncer, *chatroomID)
}

func newHistory(ctx context.Context, cfg config.Client, tokenSource repository.TokenSource) (repository.HistoryRepository, func()) {
	if cfg.History.Source != "mongo" {
		return repository.NewRestHistoryRepository(cfg.APIBaseURL, cfg.HTTPTimeout, tokenSource), func() {}
	}

	uri := fmt.Sprintf("mongodb://%s:%d", cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	if cfg.MongoSQL.User != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	}
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: cfg.MongoSQL.RetryInterval,
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	return repository.NewMongoHistoryRepository(mongo.Database, cfg.MongoSQL.Collection), func() {
		_ = mongo.Close(context.Background())
	}
}

func newLiveFeed(ctx context.Context, cfg config.Client) (repository.LiveFeed, func()) {
	if cfg.LiveFeed.Transport != "redis" {
		dialer := repository.NewWebSocketDialer(cfg.LiveFeed.URL, cfg.LiveFeed.RetryCount, cfg.LiveFeed.RetryInterval)
		return repository.NewStompFeed(dialer, repository.StompOptions{
			Host:               cfg.LiveFeed.Host,
			SubscribePrefix:    cfg.LiveFeed.SubscribePrefix,
			PublishDestination: cfg.LiveFeed.PublishDestination,
			HeartBeat:          cfg.LiveFeed.HeartBeat,
			ReconnectAttempts:  cfg.LiveFeed.ReconnectAttempts,
			ReconnectInterval:  cfg.LiveFeed.ReconnectInterval,
		}), func() {}
	}

	redisClient, err := database.NewRedisClient(ctx, database.RedisConnection{
		Addr:          cfg.Redis.Addr,
		MasterName:    cfg.Redis.MasterName,
		SentinelAddrs: cfg.Redis.SentinelAddrs,
		DB:            cfg.Redis.RedisDB,
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	return repository.NewRedisFeed(redisClient, cfg.Redis.ChannelPrefix), func() {
		_ = redisClient.Close()
	}
}

func printChatrooms(ctx context.Context, roomUC *app.RoomUseCase) {
	rooms, err := roomUC.ListChatrooms(ctx)
	if err != nil {
		logger.Log.Fatal("list chatrooms", zap.Error(err))
	}
	for _, r := range rooms {
		line := fmt.Sprintf("%s %v", r.ChatroomID, r.Participants)
		if r.LatestMessage != nil {
			line += fmt.Sprintf(" | %s: %s", r.LatestMessage.SenderID, r.LatestMessage.Content)
		}
		fmt.Println(line)
	}
}

// runChatroom 開啟聊天室, 印出 timeline 變化, stdin 每一行送出一則訊息.
// /more 讀下一頁, /reset 從第 0 頁重新開始, /quit 離開
func runChatroom(ctx context.Context, syncer *app.Synchronizer, chatroomID string) {
	if err := syncer.OpenChatroom(chatroomID); err != nil {
		logger.Log.Fatal("open chatroom", zap.Error(err))
	}
	w := syncer.Watch(chatroomID)
	defer w.Close()

	if _, err := syncer.LoadNextPage(ctx, chatroomID); err != nil {
		logger.Log.Warn("load first page", zap.Error(err))
	}
	for _, m := range syncer.Timeline(chatroomID) {
		printMessage(m)
	}

	go func() {
		for ev := range w.C {
			switch ev.Type {
			case domain.EventLiveMerged, domain.EventReconciled:
				printMessage(*ev.Message)
			case domain.EventPending:
				if ev.Added > 0 {
					printMessage(*ev.Message)
				}
			case domain.EventPageMerged:
				fmt.Printf("-- %d older messages loaded, %d in timeline\n", ev.Added, len(syncer.Timeline(chatroomID)))
			case domain.EventExhausted:
				fmt.Println("-- no more history")
			case domain.EventError:
				fmt.Printf("!! %v\n", ev.Err)
			case domain.EventConnected, domain.EventDisconnected:
				fmt.Printf("-- live feed %s\n", ev.Type)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return
			case "/more":
				syncer.RequestNextPage(ctx, chatroomID)
			case "/reset":
				if err := syncer.ResetChatroom(chatroomID); err != nil {
					logger.Log.Warn("reset chatroom", zap.Error(err))
					continue
				}
				syncer.RequestNextPage(ctx, chatroomID)
			default:
				sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := syncer.SendMessage(sendCtx, chatroomID, config.EnvConfig.UserID, line)
				cancel()
				if err != nil {
					fmt.Printf("!! send failed: %v\n", err)
				}
			}
		}
	}
}

func printMessage(m domain.Message) {
	mark := ""
	if m.Pending {
		mark = " (sending)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.SentAt.Local().Format("2006-01-02 15:04:05"), m.SenderID, m.Content, mark)
}
