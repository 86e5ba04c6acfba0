package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/imagecache/internal/cache"
	"github.com/any-hub/imagecache/internal/config"
	"github.com/any-hub/imagecache/internal/disk"
	"github.com/any-hub/imagecache/internal/logging"
	"github.com/any-hub/imagecache/internal/references"
	"github.com/any-hub/imagecache/internal/server"
	"github.com/any-hub/imagecache/internal/server/routes"
	"github.com/any-hub/imagecache/internal/statfs"
	"github.com/any-hub/imagecache/internal/version"
)

// configEnv 覆盖默认配置路径的环境变量，优先级低于 --config。
const configEnv = "IMAGECACHE_CONFIG"

// shutdownTimeout 为 HTTP 服务与挂起写盘留出的收尾时间。
const shutdownTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_root"] = cfg.DiskCacheConfig(nil, nil).RootDirectory()
		fields["max_cache_size"] = cfg.Global.MaxCacheSize.String()
		fields["reference_policy"] = cfg.ReferencePolicy().String()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 存储 supplier → 磁盘缓存 → 缓冲层 → Fiber server，
	// 所有请求共享同一个缓存实例。
	svc, err := newService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_root"] = svc.supplier.Config().RootDirectory()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.serve(ctx); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("imagecache", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVarP(&showVer, "version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// service 持有进程内共享的缓存组件。
type service struct {
	cfg      *config.Config
	logger   *logrus.Logger
	supplier *disk.DefaultSupplier
	cache    *cache.DiskStorageCache
	buffered *cache.BufferedDiskCache
}

func newService(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	diskCfg := cfg.DiskCacheConfig(logging.NewCacheErrorLogger(logger), nil)
	supplier, err := disk.NewDefaultSupplier(diskCfg)
	if err != nil {
		return nil, err
	}
	diskCache, err := cache.NewDiskStorageCache(supplier, cfg.CacheParams(), cache.Options{
		ErrorLogger: diskCfg.Logger,
		DiskSpace:   statfs.NewHelper(diskCfg.BaseDirectoryPath),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	manager := references.NewManager(cfg.ReferenceOptions(logging.NewLeakHandler(logger)))
	buffered := cache.NewBufferedDiskCache(diskCache, cache.NewBufferPool(manager), cache.BufferedOptions{
		WriteWorkers: cfg.Global.WriteWorkers,
		Logger:       logger,
	})
	return &service{
		cfg:      cfg,
		logger:   logger,
		supplier: supplier,
		cache:    diskCache,
		buffered: buffered,
	}, nil
}

// serve 运行 HTTP 服务与后台维护任务，直到 ctx 结束或任一任务失败。
func (svc *service) serve(ctx context.Context) error {
	port := svc.cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     svc.logger,
		Cache:      svc.buffered,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterAdminRoutes(app, svc.buffered)

	interval, maxAge := svc.cfg.MaintenanceSchedule()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.cache.Run(ctx, interval) })
	g.Go(func() error { return svc.supplier.Watch(ctx) })
	if maxAge > 0 {
		g.Go(func() error { return svc.clearOldEntries(ctx, interval, maxAge) })
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := app.ShutdownWithContext(shutdownCtx)
		if waitErr := svc.buffered.Wait(); waitErr != nil && err == nil {
			err = waitErr
		}
		return err
	})
	g.Go(func() error {
		svc.logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		err := app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil {
			return err
		}
		// 正常关闭后让其它任务一并退出
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

var errShutdown = errors.New("server shut down")

// clearOldEntries 周期性删除超过 maxAge 的条目。
func (svc *service) clearOldEntries(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			oldest := svc.cache.ClearOldEntries(maxAge)
			svc.logger.WithFields(logrus.Fields{
				"action":     "cache_expire",
				"max_age":    maxAge.String(),
				"oldest_age": oldest.String(),
			}).Debug("expired cache entries cleared")
		}
	}
}
