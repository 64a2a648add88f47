package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"AuthCorePlatform/pkg/config"
	pkglogger "AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/app"
	"AuthCorePlatform/services/auth-core/internal/audit"
	"AuthCorePlatform/services/auth-core/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(connect).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// connect собирает ядро по той же конфигурации, что и сервис
func connect(ctx context.Context, configFile string) (cli.Operator, audit.Recorder, func(), error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Журнал утилиты пишется в stderr только для ошибок, чтобы не смешиваться с выводом команд
	logger, err := pkglogger.NewLogger(pkglogger.Options{
		Environment: cfg.Environment,
		Level:       "error",
		Format:      "console",
		ServiceName: "revocationctl",
		Output:      os.Stderr,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	core, err := app.Build(ctx, cfg, logger, nil, "cli")
	if err != nil {
		return nil, nil, nil, err
	}

	return core.Service, core.Audit, func() {
		core.Close()
		_ = logger.Sync()
	}, nil
}
