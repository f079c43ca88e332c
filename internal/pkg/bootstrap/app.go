// Package bootstrap 封装服务的通用启动和优雅关停逻辑。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/pkg/nacos"
	"promoindex/internal/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 是注册路由时可用的组件
type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// Runner 是随服务启动的后台任务，ctx 结束时应返回
type Runner func(ctx context.Context) error

// AppInfo 包含了启动一个服务所需的特定信息
type AppInfo struct {
	ServiceName      string
	RegisterHandlers func(appCtx AppCtx)
	Runners          []Runner
	// Cleanup 在所有后台任务退出后调用，用于关闭连接
	Cleanup func()
}

// Init 加载配置并初始化日志。CONFIG_FILE 指定配置文件路径。
// 启用 Nacos 且配置了 data_id 时，用配置中心的内容覆盖本地配置。
func Init() (*Config, error) {
	cfg, err := LoadConfig(getEnv("CONFIG_FILE", defaultConfigFile))
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel)

	if n := cfg.Infra.Nacos; n.Enabled && n.DataID != "" {
		client, err := nacos.NewNacosClient(n.ServerAddrs, n.Namespace, n.Group)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		content, err := client.GetConfig(n.DataID)
		if err != nil {
			return nil, err
		}
		if err := cfg.MergeYAML([]byte(content)); err != nil {
			return nil, err
		}
		logger.Init(cfg.App.Name, cfg.App.LogLevel)
		logger.Ctx(context.Background()).Info().Str("data_id", n.DataID).Msg("config merged from nacos")
	}

	setCurrentConfig(cfg)
	return cfg, nil
}

// StartService 启动 tracer、HTTP 服务和后台任务，阻塞到收到退出信号或任一任务失败
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(cfg.App.Port), Handler: mux}

	deregister, err := register(info.ServiceName, cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Ctx(gctx).Info().Int("port", cfg.App.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, run := range info.Runners {
		run := run
		g.Go(func() error { return run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Ctx(gctx).Info().Msgf("shutting down service %s...", info.ServiceName)
		deregister()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if info.Cleanup != nil {
		info.Cleanup()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(shutdownCtx).Error().Err(err).Msg("error shutting down tracer provider")
	}
	logger.Ctx(shutdownCtx).Info().Msgf("service %s gracefully shut down", info.ServiceName)
	return runErr
}

// register 在启用 Nacos 时注册实例，返回注销函数
func register(serviceName string, cfg *Config) (func(), error) {
	n := cfg.Infra.Nacos
	if !n.Enabled {
		return func() {}, nil
	}
	client, err := nacos.NewNacosClient(n.ServerAddrs, n.Namespace, n.Group)
	if err != nil {
		return nil, err
	}
	ip, err := getOutboundIP()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get outbound ip: %w", err)
	}
	if err := client.RegisterServiceInstance(serviceName, ip, cfg.App.Port); err != nil {
		client.Close()
		return nil, err
	}
	return func() {
		if err := client.DeregisterServiceInstance(serviceName, ip, cfg.App.Port); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Msg("error deregistering from nacos")
		}
		client.Close()
	}, nil
}

// getOutboundIP 返回访问外网时使用的本机地址，不会真正发包
func getOutboundIP() (string, error) {
	if ip := os.Getenv("POD_IP"); ip != "" {
		return ip, nil
	}
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
