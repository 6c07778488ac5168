package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"Bt1QDJ/cache"
	"Bt1QDJ/config"
	"Bt1QDJ/core/auth"
	"Bt1QDJ/core/dj"
	"Bt1QDJ/core/utils"
	"Bt1QDJ/db"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
	"Bt1QDJ/repository"
	"Bt1QDJ/storage"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	})
	defer logger.Sync()

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect GORM: %v", err)
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.SavedPlaylist{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to Redis
	if err := cache.InitRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()
	log.Println("Successfully connected to Redis")

	// 初始化 MinIO 客户端（归档可选）
	if cfg.MinioEndpoint != "" {
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to initialize MinIO: %v", err)
		}
	}

	// 节点口令：配置的是明文就先哈希，$2 开头视为现成的 bcrypt 哈希
	passwordHash := ""
	if cfg.NodePassword != "" {
		if cfg.JWTSecret == "" {
			log.Fatalf("NODE_PASSWORD is set but JWT_SECRET is empty")
		}
		if err := auth.Init(cfg.JWTSecret); err != nil {
			log.Fatalf("Failed to initialize auth: %v", err)
		}
		if strings.HasPrefix(cfg.NodePassword, "$2") {
			passwordHash = cfg.NodePassword
		} else {
			hashed, err := auth.HashPassword(cfg.NodePassword)
			if err != nil {
				log.Fatalf("Failed to hash node password: %v", err)
			}
			passwordHash = hashed
		}
	}

	settingsRepo := repository.NewMySQLGuildSettingsRepository(db.DB)
	playlistRepo := repository.NewGormSavedPlaylistRepository(db.GormDB)

	engine, err := dj.New(context.Background(), dj.Config{
		Options:    engineOptions(cfg),
		QueueStore: cache.NewQueueCache(),
		Cooldowns:  cache.NewSearchCooldowns(),
		Settings:   settingsRepo,
		Playlists:  playlistRepo,
	})
	if err != nil {
		log.Fatalf("Failed to start DJ engine: %v", err)
	}

	// 节点重启后把 Redis 里的队列快照捞回来
	if restored, err := engine.Restore(context.Background()); err != nil {
		logger.Warn("队列恢复失败", logger.ErrorField(err))
	} else if restored > 0 {
		logger.Info("队列已恢复", logger.Int("count", restored))
	}

	// 自定义滤镜预设。本地文件热加载；URL 启动时拉取一次，方便多节点
	// 共用一份预设。
	if cfg.FiltersFile != "" {
		if strings.HasPrefix(cfg.FiltersFile, "http://") || strings.HasPrefix(cfg.FiltersFile, "https://") {
			local := filepath.Join(os.TempDir(), "1qdj-filters.json")
			if err := utils.DownloadFile(cfg.FiltersFile, local); err != nil {
				log.Fatalf("Failed to download filters file: %v", err)
			}
			if err := engine.Filters().LoadFile(local); err != nil {
				log.Fatalf("Failed to load filters file: %v", err)
			}
		} else {
			stopWatch, err := engine.Filters().Watch(cfg.FiltersFile)
			if err != nil {
				log.Fatalf("Failed to load filters file: %v", err)
			}
			defer stopWatch()
		}
	}

	// 事件中枢：引擎事件推给所有网关订阅者
	hub := NewEventHub()
	go hub.Run()
	engine.Bus().SubscribeAll(hub.BroadcastEvent)

	// 初始化处理器
	apiHandler := NewAPIHandler(engine, settingsRepo, playlistRepo, hub, cfg, passwordHash)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 认证
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 节点状态
	router.HandleFunc("/api/status", apiHandler.AuthMiddleware(apiHandler.StatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/filters", apiHandler.AuthMiddleware(apiHandler.FiltersCatalogHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/guilds", apiHandler.AuthMiddleware(apiHandler.GuildsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/search", apiHandler.AuthMiddleware(apiHandler.SearchHandler)).Methods(http.MethodGet)

	// 播放
	router.HandleFunc("/api/guilds/{guildID}/play", apiHandler.AuthMiddleware(apiHandler.PlayHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/search/answer", apiHandler.AuthMiddleware(apiHandler.AnswerSearchHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/search", apiHandler.AuthMiddleware(apiHandler.CancelSearchHandler)).Methods(http.MethodDelete)

	// 队列控制
	router.HandleFunc("/api/guilds/{guildID}/queue", apiHandler.AuthMiddleware(apiHandler.QueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/guilds/{guildID}/skip", apiHandler.AuthMiddleware(apiHandler.SkipHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/previous", apiHandler.AuthMiddleware(apiHandler.PreviousHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/jump", apiHandler.AuthMiddleware(apiHandler.JumpHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/stop", apiHandler.AuthMiddleware(apiHandler.StopHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/pause", apiHandler.AuthMiddleware(apiHandler.PauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/resume", apiHandler.AuthMiddleware(apiHandler.ResumeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/shuffle", apiHandler.AuthMiddleware(apiHandler.ShuffleHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/songs/{position}", apiHandler.AuthMiddleware(apiHandler.RemoveSongHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/guilds/{guildID}/seek", apiHandler.AuthMiddleware(apiHandler.SeekHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/volume", apiHandler.AuthMiddleware(apiHandler.VolumeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/repeat", apiHandler.AuthMiddleware(apiHandler.RepeatHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/guilds/{guildID}/repeat/cycle", apiHandler.AuthMiddleware(apiHandler.CycleRepeatHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/autoplay", apiHandler.AuthMiddleware(apiHandler.AutoplayHandler)).Methods(http.MethodPost)

	// 滤镜
	router.HandleFunc("/api/guilds/{guildID}/filters", apiHandler.AuthMiddleware(apiHandler.QueueFiltersHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/guilds/{guildID}/filters", apiHandler.AuthMiddleware(apiHandler.SetFiltersHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/guilds/{guildID}/filters", apiHandler.AuthMiddleware(apiHandler.AddFilterHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/filters/{name}", apiHandler.AuthMiddleware(apiHandler.RemoveFilterHandler)).Methods(http.MethodDelete)

	// 服务器设置
	router.HandleFunc("/api/guilds/{guildID}/settings", apiHandler.AuthMiddleware(apiHandler.GetSettingsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/guilds/{guildID}/settings", apiHandler.AuthMiddleware(apiHandler.UpdateSettingsHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/guilds/{guildID}/settings", apiHandler.AuthMiddleware(apiHandler.DeleteSettingsHandler)).Methods(http.MethodDelete)

	// 歌单
	router.HandleFunc("/api/playlists/custom", apiHandler.AuthMiddleware(apiHandler.CreateCustomPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/playlists", apiHandler.AuthMiddleware(apiHandler.ListPlaylistsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/guilds/{guildID}/playlists", apiHandler.AuthMiddleware(apiHandler.SavePlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/playlists/custom/play", apiHandler.AuthMiddleware(apiHandler.PlayCustomPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/playlists/import", apiHandler.AuthMiddleware(apiHandler.ImportPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/playlists/{name}/play", apiHandler.AuthMiddleware(apiHandler.PlaySavedPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/playlists/{name}/export", apiHandler.AuthMiddleware(apiHandler.ExportPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/playlists/{name}", apiHandler.AuthMiddleware(apiHandler.DeleteSavedPlaylistHandler)).Methods(http.MethodDelete)

	// 语音会话
	router.HandleFunc("/api/guilds/{guildID}/voice/join", apiHandler.AuthMiddleware(apiHandler.JoinVoiceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/voice/leave", apiHandler.AuthMiddleware(apiHandler.LeaveVoiceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/voice/events", apiHandler.AuthMiddleware(apiHandler.VoiceEventHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/guilds/{guildID}/voice/listeners", apiHandler.AuthMiddleware(apiHandler.ListenersHandler)).Methods(http.MethodPost)

	// 事件网关（自带鉴权，支持 query 参数传 token）
	router.HandleFunc("/ws/events", apiHandler.GatewayHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("DJ node starting on %s...", cfg.ServerAddr)
		log.Println("Queue a song via POST to /api/guilds/{guildID}/play")
		log.Println("Subscribe to engine events at /ws/events")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// 先关引擎让队列快照落盘，再停网关
	engine.Close()
	hub.Stop()

	log.Println("Server stopped")
}

// engineOptions 把环境变量覆盖项折叠进引擎选项，没设置的留给
// ApplyDefaults 填默认值。
func engineOptions(cfg *config.Config) model.Options {
	opts := model.Options{
		LeaveOnEmpty:   cfg.EngineLeaveOnEmpty,
		LeaveOnFinish:  cfg.EngineLeaveOnFinish,
		LeaveOnStop:    cfg.EngineLeaveOnStop,
		NSFW:           cfg.EngineNSFW,
		DirectLink:     cfg.EngineDirectLink,
		SearchSongs:    cfg.EngineSearchSongs,
		EmptyCooldown:  cfg.EngineEmptyCooldown,
		SearchCooldown: cfg.EngineSearchCooldown,
	}
	if cfg.EngineStreamType == "raw" {
		opts.StreamType = model.StreamTypeRaw
	}
	return opts
}
