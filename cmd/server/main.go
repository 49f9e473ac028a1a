// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"myreprise-chatbot-go/internal/config"
	"myreprise-chatbot-go/internal/handler"
	"myreprise-chatbot-go/internal/intent"
	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/internal/pipeline"
	"myreprise-chatbot-go/internal/repository"
	"myreprise-chatbot-go/internal/service"
	"myreprise-chatbot-go/pkg/database"
	"myreprise-chatbot-go/pkg/embedding"
	"myreprise-chatbot-go/pkg/es"
	"myreprise-chatbot-go/pkg/kafka"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/prefsource"
	"myreprise-chatbot-go/pkg/storage"
	"myreprise-chatbot-go/pkg/token"
	"myreprise-chatbot-go/pkg/vectorindex"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 初始化外部存储，均为可选，不可用时降级为进程内实现
	var db *gorm.DB
	if cfg.Database.MySQL.DSN != "" {
		if db, err = database.NewMySQL(cfg.Database.MySQL.DSN); err != nil {
			log.Warnf("MySQL 不可用，商品目录与偏好编辑将被禁用: %v", err)
			db = nil
		}
	}
	var rdb *redis.Client
	if cfg.Database.Redis.Addr != "" {
		if rdb, err = database.NewRedis(cfg.Database.Redis); err != nil {
			log.Warnf("Redis 不可用，会话与画像只使用进程内存储: %v", err)
			rdb = nil
		}
	}
	var snapshots storage.SnapshotStore
	if cfg.MinIO.Endpoint != "" && cfg.Index.Backend != "elasticsearch" {
		if snapshots, err = storage.NewMinIOSnapshotStore(rootCtx, cfg.MinIO); err != nil {
			log.Warnf("MinIO 不可用，索引快照将被禁用: %v", err)
			snapshots = nil
		}
	}

	// 4. 初始化 Repository
	cleanup := time.Duration(cfg.Store.CleanupIntervalSeconds) * time.Second
	var (
		catalogRepo repository.CatalogRepository
		prefRepo    repository.PreferenceRepository
	)
	sessionRepo, profileRepo := newRemoteStores(rdb)
	if db != nil {
		catalogRepo = repository.NewCatalogRepository(db)
		// offers 表属于商品服务，这里只迁移本服务自己的偏好表
		if err := db.AutoMigrate(&model.UserPreference{}); err != nil {
			log.Warnf("偏好表迁移失败，偏好编辑将被禁用: %v", err)
		} else {
			prefRepo = repository.NewPreferenceRepository(db)
		}
	}

	// 5. 初始化向量索引与外部客户端
	index, err := newIndex(rootCtx, cfg)
	if err != nil {
		log.Fatal("向量索引初始化失败", err)
	}
	embeddingClient := embedding.NewClient(cfg.Embedding)
	var source prefsource.Source
	if cfg.PreferenceSource.BaseURL != "" {
		source = prefsource.NewClient(cfg.PreferenceSource)
	}
	classifier, err := intent.NewFromConfig(cfg.Intent)
	if err != nil {
		log.Fatal("意图分类器初始化失败", err)
	}

	// 6. 初始化 Service (依赖注入)
	remoteTimeout := time.Duration(cfg.Database.Redis.TimeoutSeconds) * time.Second
	sessionService := service.NewSessionService(sessionRepo, service.SessionOptions{
		TTL:           time.Duration(cfg.Store.SessionTTLSeconds) * time.Second,
		HistorySize:   cfg.Store.HistorySize,
		RemoteTimeout: remoteTimeout,
	})
	profileService := service.NewProfileService(profileRepo, source, prefRepo, service.ProfileOptions{
		TTL:           time.Duration(cfg.Store.ProfileTTLSeconds) * time.Second,
		DefaultTTL:    time.Duration(cfg.Store.DefaultProfileTTLSeconds) * time.Second,
		RemoteTimeout: remoteTimeout,
		FetchTimeout:  time.Duration(cfg.PreferenceSource.TimeoutSeconds) * time.Second,
	})
	learningWorker := service.NewLearningWorker(profileService, cfg.Learning.QueueSize, cfg.Learning.Workers)
	learningWorker.Start()

	chatService := service.NewChatService(service.ChatDeps{
		Sessions:   sessionService,
		Classifier: classifier,
		Embedder:   embeddingClient,
		Index:      index,
		Profiles:   profileService,
		Scorer:     service.NewScorer(cfg.Scoring.TextWeight, cfg.Scoring.ProfileWeight),
		Composer:   service.NewResponseComposer(nil),
		Learner:    learningWorker,
		Source:     source,
	}, service.ChatOptions{
		TopK:            cfg.Index.TopK,
		EmbedTimeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		PipelineTimeout: time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second,
		ContextWindow:   cfg.Pipeline.ContextWindow,
	})

	// 7. 初始化商品索引管道 (Processor) 与 Kafka
	processor := pipeline.NewProcessor(catalogRepo, embeddingClient, index)
	indexDeps := service.IndexDeps{
		Backend:        cfg.Index.Backend,
		Index:          index,
		Indexer:        processor,
		Catalog:        catalogRepo,
		Snapshots:      snapshots,
		SnapshotObject: cfg.Index.SnapshotObject,
	}
	var producer *kafka.Producer
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		indexDeps.Producer = producer
	}
	indexService := service.NewIndexService(indexDeps)

	// 7.1 启动时恢复索引：优先加载快照，否则从商品目录全量索引。
	// 预热完成后才开始消费 Kafka，期间的任务留在主题中
	go func() {
		warmIndex(rootCtx, cfg, indexService, snapshots != nil)
		if producer != nil {
			kafka.StartConsumer(rootCtx, cfg.Kafka, processor)
		}
	}()

	// 7.2 后台清理过期会话
	sessionService.StartSweeper(rootCtx, cleanup)

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	r := handler.NewRouter(handler.RouterDeps{
		ChatService:  chatService,
		IndexService: indexService,
		JWTManager:   jwtManager,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 停止 Kafka 消费者与会话清理
	cancelRoot()
	if err := learningWorker.Stop(ctx); err != nil {
		log.Warnf("学习任务未能全部完成: %v", err)
	}
	if snapshots != nil {
		if n, err := indexService.SaveSnapshot(ctx); err != nil {
			log.Errorf("保存索引快照失败: %v", err)
		} else {
			log.Infof("索引快照已保存, 商品数: %d", n)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("服务已优雅关闭")
}

// newRemoteStores 返回会话与画像的远端存储。未配置 Redis 时两者均为 nil，
// 会话与画像只保存在本进程。
func newRemoteStores(rdb *redis.Client) (repository.SessionRepository, repository.ProfileRepository) {
	if rdb == nil {
		return nil, nil
	}
	return repository.NewRedisSessionRepository(rdb), repository.NewRedisProfileRepository(rdb)
}

// newIndex 根据配置创建向量索引后端。
func newIndex(ctx context.Context, cfg *config.Config) (vectorindex.Index, error) {
	if cfg.Index.Backend != "elasticsearch" {
		log.Infof("使用内存向量索引, 维度: %d", cfg.Embedding.Dimensions)
		return vectorindex.NewMemoryIndex(cfg.Embedding.Dimensions), nil
	}
	client, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		return nil, err
	}
	if err := es.EnsureIndex(ctx, client, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions); err != nil {
		return nil, fmt.Errorf("es 初始化失败: %w", err)
	}
	log.Infof("使用 Elasticsearch 向量索引 '%s'", cfg.Elasticsearch.IndexName)
	return vectorindex.NewElasticIndex(client, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions), nil
}

// warmIndex 在启动时填充内存索引，Elasticsearch 后端的数据是持久的，无需处理。
func warmIndex(ctx context.Context, cfg *config.Config, indexService service.IndexService, hasSnapshots bool) {
	if cfg.Index.Backend == "elasticsearch" {
		return
	}
	if hasSnapshots {
		n, err := indexService.LoadSnapshot(ctx)
		if err != nil {
			log.Warnf("加载索引快照失败: %v", err)
		}
		if n > 0 {
			log.Infof("已从快照恢复 %d 个商品", n)
			return
		}
	}
	if !cfg.Index.SeedFromCatalog {
		log.Info("未启用商品目录初始化，索引为空")
		return
	}
	indexed, failed, err := indexService.Reindex(ctx)
	if err != nil {
		log.Warnf("从商品目录初始化索引失败: %v", err)
		return
	}
	log.Infof("商品目录初始化完成, 成功: %d, 失败: %d", indexed, failed)
}
