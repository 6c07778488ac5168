package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"Bt1QDJ/config"
	"Bt1QDJ/core/filter"
)

var filtersFile string

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "列出滤镜预设",
	Long:  `列出节点可用的ffmpeg滤镜预设，包含内置预设与自定义文件中的预设。`,
	Run: func(cmd *cobra.Command, args []string) {
		resolver := filter.NewResolver(nil)

		// 命令行参数优先，其次环境配置
		path := filtersFile
		if path == "" {
			path = config.Load().FiltersFile
		}
		if path != "" {
			if err := resolver.LoadFile(path); err != nil {
				log.Fatalf("加载滤镜文件失败: %v", err)
			}
			fmt.Printf("已加载自定义滤镜: %s\n\n", path)
		}

		names := resolver.Names()
		for _, name := range names {
			f, err := resolver.Resolve(name)
			if err != nil {
				continue
			}
			fmt.Printf("%-16s %s\n", f.Name, f.Value)
		}
		fmt.Printf("\n共 %d 个预设\n", len(names))
	},
}

func init() {
	rootCmd.AddCommand(filtersCmd)

	filtersCmd.Flags().StringVarP(&filtersFile, "file", "f", "", "自定义滤镜预设文件（JSON）")
}
