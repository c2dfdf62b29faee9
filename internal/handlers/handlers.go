package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"snapfeed/internal/config"
	"snapfeed/internal/middleware"
	"snapfeed/internal/pipeline"
	"snapfeed/internal/queue"
	"snapfeed/internal/repository"
	"snapfeed/internal/service"
	"snapfeed/internal/storage"
)

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	ingest  *service.IngestService
	records pipeline.RecordStore
	store   pipeline.BlobStore
	db      *pgxpool.Pool
	cache   *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	recordRepo := repository.NewRecordRepository(db)
	producer := queue.NewProducer(cache, cfg.Queue)
	ingest := service.NewIngestService(recordRepo, store, producer, log)

	return HandlerSet{
		log:     log,
		cfg:     cfg,
		ingest:  ingest,
		records: recordRepo,
		store:   store,
		db:      db,
		cache:   cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	posts := v1.Group("/posts")
	posts.Use(middleware.Auth(h.cfg))
	posts.POST("", h.CreatePost)
	posts.GET("/:id", h.GetPost)

	users := v1.Group("/users")
	users.Use(middleware.Auth(h.cfg))
	users.GET("/:userId/posts", h.ListUserPosts)

	admin := v1.Group("/admin")
	admin.Use(middleware.Auth(h.cfg))
	admin.GET("/posts/pending", h.ListPendingPosts)
}
