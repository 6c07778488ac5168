// Package utils holds small shared helpers with no engine dependencies.
package utils

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// downloadClient bounds how long a startup fetch may hang.
var downloadClient = &http.Client{Timeout: 30 * time.Second}

// DownloadFile 下载文件到指定路径。节点用它在启动时拉取共享的
// 滤镜预设文件。
func DownloadFile(url, filepath string) error {
	resp, err := downloadClient.Get(url)
	if err != nil {
		return fmt.Errorf("下载文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载文件失败，状态码: %d", resp.StatusCode)
	}

	out, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("保存文件失败: %w", err)
	}

	return nil
}
