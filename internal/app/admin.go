package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/seed"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/catalog"
)

// LoadDotEnv подмешивает переменные из файла; уже заданные в окружении не перетираются.
// Отсутствующий файл не ошибка.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// SeedCatalog заливает каталог в хранилище из конфига. При пустом path берётся встроенный каталог.
func SeedCatalog(ctx context.Context, cfg Config, path string) (seed.Result, error) {
	data, err := readSeed(path)
	if err != nil {
		return seed.Result{}, err
	}

	logger := log.WithField("component", "seed")
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return seed.Result{}, err
	}
	defer deps.Close(ctx, logger)

	return seed.Apply(ctx, catalog.NewService(deps.products, logger), data, logger)
}

func readSeed(path string) (seed.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return seed.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed.Catalog{}, fmt.Errorf("read seed file: %w", err)
	}
	return seed.Parse(raw)
}

// CreateStaff регистрирует сотрудника кофейни и возвращает его сессию с токеном для OrderDesk.
func CreateStaff(ctx context.Context, cfg Config, in account.RegisterInput) (account.Session, error) {
	logger := log.WithField("component", "staff")
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return account.Session{}, err
	}
	defer deps.Close(ctx, logger)

	tokens, err := account.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return account.Session{}, fmt.Errorf("token issuer: %w", err)
	}
	return account.NewService(deps.customers, tokens, cfg.BcryptCost, logger).RegisterStaff(ctx, in)
}
