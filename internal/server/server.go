package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/export"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/hub"
	"whiteboard-backend/internal/mailer"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/render"
	"whiteboard-backend/internal/storage"
	"whiteboard-backend/internal/store"
)

// Server Fiber server wrapper
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	db      *gorm.DB
	tokens  *auth.TokenManager
	tracker *presence.Tracker

	scheduler *render.Scheduler

	boardHandler   *handler.WhiteboardHandler
	boardWSHandler *handler.BoardWSHandler
	exportHandler  *handler.ExportHandler
}

// New wires the full application
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:        "Whiteboard Sync Backend",
		ServerHeader:   "Fiber",
		StrictRouting:  true,
		CaseSensitive:  true,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		Prefork:        false, // incompatible with WebSocket
		ReadBufferSize: 16384,
		BodyLimit:      10 * 1024 * 1024,
	})

	tokens := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenExpiry)
	elements := store.NewElementStore(db)
	tracker := presence.NewTracker(db)
	boardHub := hub.NewHub()

	// Rendered images go to S3 when configured, local disk otherwise
	var imageStorage render.ImageStorage
	if cfg.S3.BucketName != "" && cfg.S3.AccessKeyID != "" {
		s3Service, err := storage.NewS3Service(&cfg.S3)
		if err != nil {
			log.Fatalf("S3 initialization failed: %v", err)
		}
		log.Printf("[Server] S3 storage initialized (bucket: %s)", cfg.S3.BucketName)
		imageStorage = s3Service
	} else {
		localService, err := storage.NewLocalService("./uploads")
		if err != nil {
			log.Fatalf("Local storage initialization failed: %v", err)
		}
		log.Println("[Server] S3 not configured, storing renders under ./uploads")
		imageStorage = localService
	}

	supervisor := render.NewSupervisor(db, elements, imageStorage, cfg.Render)

	// Thumbnail pending set lives in Redis when available so marks survive
	// restarts; otherwise in process memory
	var dirty render.DirtySet
	if cfg.Redis.Addr != "" {
		redisSet, err := render.NewRedisDirtySet(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Redis initialization failed: %v", err)
		}
		log.Printf("[Server] Redis dirty set initialized (%s)", cfg.Redis.Addr)
		dirty = redisSet
	} else {
		log.Println("[Server] Redis not configured, using in-memory dirty set")
		dirty = render.NewMemoryDirtySet()
	}

	scheduler := render.NewScheduler(db, supervisor, dirty, cfg.Render)
	coordinator := export.NewCoordinator(db, elements, supervisor)

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		tokens:         tokens,
		tracker:        tracker,
		scheduler:      scheduler,
		boardHandler:   handler.NewWhiteboardHandler(db, elements, mailer.LogMailer{}),
		boardWSHandler: handler.NewBoardWSHandler(db, boardHub, elements, tracker, tokens, scheduler),
		exportHandler:  handler.NewExportHandler(db, supervisor, coordinator, cfg.Render.CallbackSecret),
	}
}

// SetupMiddleware middleware setup
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Locally stored renders
	s.app.Static("/uploads", "./uploads")
}

// SetupRoutes route setup
func (s *Server) SetupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// Preview callback comes from an external service; rate-limited per IP
	callbackLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})
	s.app.Post("/api/render/callback", callbackLimiter, s.exportHandler.PreviewCallback)

	boardGroup := s.app.Group("/api/whiteboards", auth.Middleware(s.tokens))
	boardGroup.Post("", s.boardHandler.CreateWhiteboard)
	boardGroup.Get("/:id", s.boardHandler.GetWhiteboard)
	boardGroup.Put("/:id", s.boardHandler.UpdateWhiteboard)
	boardGroup.Delete("/:id", s.boardHandler.DeleteWhiteboard)
	boardGroup.Post("/:id/restore", s.boardHandler.RestoreWhiteboard)
	boardGroup.Get("/:id/elements", s.boardHandler.GetElements)
	boardGroup.Get("/:id/chat", s.boardHandler.GetChatHistory)
	boardGroup.Put("/:id/members", s.boardHandler.UpdateMembers)
	boardGroup.Post("/:id/export", s.exportHandler.ExportPNG)
	boardGroup.Post("/:id/export-asset", s.exportHandler.ExportAsset)

	assetGroup := s.app.Group("/api/assets", auth.Middleware(s.tokens))
	assetGroup.Post("/:assetId/import", s.exportHandler.ImportAsset)

	// Whiteboard sync endpoint; the guard refuses bad handshakes pre-upgrade
	s.app.Get("/ws/whiteboard/:courseId/:boardId",
		s.boardWSHandler.UpgradeGuard,
		websocket.New(s.boardWSHandler.HandleConnection, websocket.Config{
			ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
		}))
}

// Start starts the server with graceful shutdown
func (s *Server) Start() error {
	// Stale sessions from a previous instance would corrupt presence lists
	if err := s.tracker.PurgeAll(); err != nil {
		return err
	}

	s.scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		s.scheduler.Stop()
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Whiteboard sync backend starting on %s", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the scheduler and the HTTP server
func (s *Server) Shutdown() error {
	s.scheduler.Stop()
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
