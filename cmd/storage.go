package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"Bt1QDJ/config"
	"Bt1QDJ/storage"
)

var (
	storagePrefix  string
	storageDelete  string
	storagePresign string
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "归档存储管理",
	Long:  `查看和管理MinIO中的歌单归档，支持列出归档、生成下载链接、删除归档。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		if cfg.MinioEndpoint == "" {
			log.Fatal("未配置 MINIO_ENDPOINT，归档存储不可用")
		}
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		// 初始化MinIO客户端
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		switch {
		case storageDelete != "":
			fmt.Printf("\n删除归档: %s\n", storageDelete)
			if err := storage.DeleteArchive(ctx, storageDelete); err != nil {
				log.Fatalf("删除归档失败: %v", err)
			}
			fmt.Println("归档已删除")

		case storagePresign != "":
			url, err := storage.PresignArchiveURL(ctx, storagePresign, 24*time.Hour)
			if err != nil {
				log.Fatalf("生成下载链接失败: %v", err)
			}
			fmt.Printf("\n下载链接（24小时有效）:\n%s\n", url)

		default:
			fmt.Printf("\n列出归档 (前缀: %s)...\n", storagePrefix)
			archives, err := storage.ListArchives(ctx, storagePrefix)
			if err != nil {
				log.Fatalf("列举归档失败: %v", err)
			}
			if len(archives) == 0 {
				fmt.Println("（空）")
				return
			}
			var total int64
			for _, a := range archives {
				fmt.Printf("%-60s %8d B  %s\n", a.Key, a.Size, a.LastModified.Format(time.RFC3339))
				total += a.Size
			}
			fmt.Printf("\n共 %d 个归档，%d 字节\n", len(archives), total)
		}

		fmt.Println("\n存储操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)

	// 添加命令行参数
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "archives/", "按前缀过滤归档")
	storageCmd.Flags().StringVarP(&storageDelete, "delete", "d", "", "删除指定的归档对象")
	storageCmd.Flags().StringVar(&storagePresign, "presign", "", "为指定归档生成临时下载链接")

	// 添加使用说明
	storageCmd.Example = `  # 列出所有归档
  1qdj_server storage

  # 只看某个服务器的归档
  1qdj_server storage -p "archives/1046786402937932/"

  # 生成临时下载链接
  1qdj_server storage --presign "archives/1046786402937932/party.json"

  # 删除归档
  1qdj_server storage -d "archives/1046786402937932/party.json"`
}
