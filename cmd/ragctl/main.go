// Package main 是 ragctl 命令行工具的入口点。
package main

import (
	"fmt"
	"os"

	"iep-rag-go/internal/cli"
	"iep-rag-go/pkg/log"
)

func main() {
	defer log.Sync()
	if err := cli.NewRootCommand(cli.DefaultCoreFactory).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ragctl: %s\n", err)
		os.Exit(1)
	}
}
