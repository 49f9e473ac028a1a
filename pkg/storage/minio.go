// Package storage 提供了与对象存储服务（如 MinIO）交互的功能，用于保存向量索引快照。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"myreprise-chatbot-go/internal/config"
	"myreprise-chatbot-go/pkg/log"
)

// SnapshotStore 定义了索引快照的保存与读取。
type SnapshotStore interface {
	Save(ctx context.Context, object string, data []byte) error
	// Load 读取快照，对象不存在时返回 (nil, nil)
	Load(ctx context.Context, object string) ([]byte, error)
}

type minioSnapshotStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOSnapshotStore 初始化 MinIO 客户端并确保存储桶存在。
func NewMinIOSnapshotStore(ctx context.Context, cfg config.MinIOConfig) (SnapshotStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	return &minioSnapshotStore{client: client, bucket: cfg.BucketName}, nil
}

func (s *minioSnapshotStore) Save(ctx context.Context, object string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}

func (s *minioSnapshotStore) Load(ctx context.Context, object string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}
