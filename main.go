// agentpipe is a message processing pipeline for conversational agents.
package main

import (
	"fmt"
	"os"

	"github.com/agentpipe/agentpipe/cmd"
	"github.com/agentpipe/agentpipe/config"
	"github.com/agentpipe/agentpipe/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	dir, _ := config.Dir()
	if err := logger.Init(cfg.BuildLoggerConfig(), dir); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
	}
	cmd.Execute()
}
