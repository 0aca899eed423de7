package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"panel-server-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("c", "", "配置文件路径，默认读取 ./config.yaml")
	flag.Parse()

	fmt.Printf("[%s] [INFO] [引导] 开始启动 panel-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), *configPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "panel-server failed: %v\n", err)
		os.Exit(1)
	}
}
