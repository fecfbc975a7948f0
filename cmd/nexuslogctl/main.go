package main

import (
	"fmt"
	"os"

	"nexuslog/internal/app"
	"nexuslog/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	env := &environment{
		cfg: cfg,
		bot: app.Telegram(cfg.Telegram, app.NewHTTPClient(cfg.RequestTimeout), nil),
		out: os.Stdout,
	}
	if err := newCLIApp(env).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
