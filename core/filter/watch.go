package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"Bt1QDJ/logger"
)

// LoadFile reads a JSON preset file ({"name": "ffmpeg expression", ...})
// into the hot-reload layer. A missing file clears the layer instead of
// failing, so deleting the file reverts to built-ins at the next reload.
func (r *Resolver) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.setFileLayer(nil)
			return nil
		}
		return fmt.Errorf("read filter presets: %w", err)
	}
	presets := map[string]string{}
	if err := json.Unmarshal(data, &presets); err != nil {
		return fmt.Errorf("parse filter presets %s: %w", path, err)
	}
	r.setFileLayer(presets)
	logger.Info("加载滤镜预设文件",
		logger.String("path", path),
		logger.Int("presets", len(presets)))
	return nil
}

// Watch loads path now and reloads it whenever it changes. The parent
// directory is watched rather than the file itself so rename-style saves
// still trigger a reload. The returned stop function releases the watcher.
func (r *Resolver) Watch(path string) (stop func() error, err error) {
	if err := r.LoadFile(path); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filter watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					logger.Warn("滤镜预设热加载失败", logger.ErrorField(err))
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("滤镜预设监听错误", logger.ErrorField(werr))
			}
		}
	}()

	return watcher.Close, nil
}
