package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_market_pulse/internal/domain"
	"github.com/vitos/crypto_market_pulse/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_pulse/internal/infrastructure/logger"
	"github.com/vitos/crypto_market_pulse/internal/infrastructure/storage"
	"github.com/vitos/crypto_market_pulse/internal/usecase"
	"github.com/vitos/crypto_market_pulse/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Upstream struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"upstream"`
	Market struct {
		Currency         string `yaml:"currency"`
		PageSize         int    `yaml:"page_size"`
		RefreshIntervalS int    `yaml:"refresh_interval_s"`
	} `yaml:"market"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		Dev   bool   `yaml:"dev"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets a .env file or the environment override endpoints and
// port without editing the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("UPSTREAM_REST_ENDPOINT"); v != "" {
		cfg.Upstream.RESTEndpoint = v
	}
	if v := os.Getenv("UPSTREAM_WS_ENDPOINT"); v != "" {
		cfg.Upstream.WSEndpoint = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
}

// logNotifier is the daemon's notification sink: triggered alerts land
// in the service log. A UI or push channel would wrap this.
type logNotifier struct {
	log *zap.Logger
}

func (n *logNotifier) Notify(title, body string) {
	n.log.Info("NOTIFY", zap.String("title", title), zap.String("body", body))
}

func main() {
	// Optional .env next to the binary; absence is fine.
	_ = godotenv.Load()

	configPath := os.Getenv("MARKETD_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyEnv(cfg)

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Dev)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "market.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	adapter := exchange.NewBinanceAdapter(cfg.Upstream.RESTEndpoint)
	marketService := usecase.NewMarketService(adapter, store, log)
	alertService := usecase.NewAlertService(store, &logNotifier{log: log}, log)

	if err := alertService.Reload(context.Background()); err != nil {
		log.Error("Failed to load alerts", zap.Error(err))
	}

	currency := cfg.Market.Currency
	if currency == "" {
		currency = "usd"
	}
	pageSize := cfg.Market.PageSize
	if pageSize <= 0 {
		pageSize = 30
	}

	// Initial snapshot; a cold failure is tolerated, the refresh loop
	// and the cache fallback will recover.
	if _, err := marketService.LoadPage(context.Background(), 1, pageSize, currency); err != nil {
		log.Error("Initial market load failed", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	// Live-tick overlay + alert evaluation share the stream.
	stream := exchange.NewMiniTickerStream(cfg.Upstream.WSEndpoint, log)
	stream.Start(func(t domain.Tick) {
		marketService.ApplyTick(t)
		alertService.OnTick(t)
	})

	refresh := time.Duration(cfg.Market.RefreshIntervalS) * time.Second
	if refresh <= 0 {
		refresh = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), refresh)
				if _, err := marketService.LoadPage(ctx, 1, pageSize, currency); err != nil {
					log.Error("Market refresh failed", zap.Error(err))
				}
				cancel()
			case <-done:
				return
			}
		}
	}()

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, marketService, alertService,
		func() string { return stream.State().String() }, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-stop
	close(done)

	log.Info("Shutting down...")
	stream.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
