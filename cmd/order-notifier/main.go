package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/app"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file with STOREFRONT_* overrides")
	flag.Parse()

	if err := app.LoadDotEnv(*envFile); err != nil {
		log.WithError(err).Fatal("не удалось прочитать env-файл")
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	app.ConfigureLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunNotifier(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("order-notifier завершился с ошибкой")
	}
	log.Info("order-notifier остановлен")
}
