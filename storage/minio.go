package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Bt1QDJ/config"
	"Bt1QDJ/logger"
)

var (
	minioClient *minio.Client
	bucket      string
)

// InitMinio 初始化 MinIO 客户端并确保归档桶存在
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("创建归档存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	bucket = cfg.MinioBucket
	logger.Info("MinIO 客户端初始化成功",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// Enabled reports whether archive storage was configured at startup.
func Enabled() bool {
	return minioClient != nil
}

// ArchiveName builds the canonical object key for a guild playlist archive.
func ArchiveName(guildID uint64, playlist string) string {
	return fmt.Sprintf("archives/%d/%s.json", guildID, playlist)
}

// UploadArchive stores a JSON archive under the given object key.
func UploadArchive(ctx context.Context, objectName string, data []byte) error {
	if minioClient == nil {
		return fmt.Errorf("minio not initialized")
	}
	_, err := minioClient.PutObject(ctx, bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("上传归档失败: %w", err)
	}
	return nil
}

// DownloadArchive reads a JSON archive back.
func DownloadArchive(ctx context.Context, objectName string) ([]byte, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("minio not initialized")
	}
	object, err := minioClient.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取归档失败: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取归档内容失败: %w", err)
	}
	return data, nil
}

// PresignArchiveURL returns a time-limited direct download link so frontends
// can fetch exports without holding a node token.
func PresignArchiveURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("minio not initialized")
	}
	u, err := minioClient.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return u.String(), nil
}

// ArchiveInfo 归档对象的基本信息
type ArchiveInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListArchives walks the bucket under a prefix. Empty prefix lists every
// archive on the node.
func ListArchives(ctx context.Context, prefix string) ([]ArchiveInfo, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("minio not initialized")
	}

	var archives []ArchiveInfo
	for object := range minioClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列举归档失败: %w", object.Err)
		}
		archives = append(archives, ArchiveInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return archives, nil
}

// DeleteArchive removes one archive object.
func DeleteArchive(ctx context.Context, objectName string) error {
	if minioClient == nil {
		return fmt.Errorf("minio not initialized")
	}
	if err := minioClient.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除归档失败: %w", err)
	}
	return nil
}
