package cmd

import (
	"github.com/spf13/cobra"

	"Bt1QDJ/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动1QDJ节点",
	Long:  `启动1QDJ播放节点，提供HTTP控制接口和WebSocket事件网关`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
