package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/charlesng35/calsched/internal/app"
	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/database"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/pkg/logger"
)

// session holds the configuration and the lazily opened store shared by subcommands.
type session struct {
	out   io.Writer
	cfg   *app.Config
	db    *gorm.DB
	store *repository.GormStore
}

func newApp(out io.Writer) *cli.App {
	s := &session{out: out}

	return &cli.App{
		Name:      "calschedctl",
		Usage:     "Administer the calsched scheduling engine.",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to configuration directory or file", EnvVars: []string{"CALSCHED_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Log level for diagnostic output"},
		},
		Before: s.before,
		After:  s.after,
		Commands: []*cli.Command{
			userCommand(s),
			tokenCommand(s),
			boundariesCommand(s),
			slotsCommand(s),
			maintenanceCommand(s),
		},
	}
}

func (s *session) before(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	cfg.Server.LogLevel = c.String("log-level")
	cfg.Server.LogEncoding = "console"
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	s.cfg = cfg
	return nil
}

func (s *session) after(*cli.Context) error {
	defer logger.Sync() // best effort
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *session) openStore() (*repository.GormStore, error) {
	if s.store != nil {
		return s.store, nil
	}

	db, err := database.Open(s.cfg.Database.ConnectionConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = db
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if s.store, err = repository.NewGormStore(db); err != nil {
		return nil, err
	}
	return s.store, nil
}

// jwtService signs with the secret the server uses: the configured one, else the stored one.
func (s *session) jwtService(ctx context.Context) (*iauth.JWTService, error) {
	if _, err := s.openStore(); err != nil {
		return nil, err
	}
	generated, err := app.ApplyRuntimeDefaults(s.cfg)
	if err != nil {
		return nil, err
	}
	if generated["auth.jwt.secret"] {
		secret, err := database.EnsureJWTSecret(ctx, s.db, s.cfg.Auth.JWT.Secret)
		if err != nil {
			return nil, err
		}
		s.cfg.Auth.JWT.Secret = secret
	}
	return iauth.NewJWTService(s.cfg.Auth.JWTServiceConfig())
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}
