package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Scusemua/go-utils/config"

	"github.com/soc-validation/boardfarm/common/configuration"
	"github.com/soc-validation/boardfarm/common/consul"
	"github.com/soc-validation/boardfarm/common/metrics"
	"github.com/soc-validation/boardfarm/common/queue"
	"github.com/soc-validation/boardfarm/common/utils"
	"github.com/soc-validation/boardfarm/daemon"
	"github.com/soc-validation/boardfarm/health"
	"github.com/soc-validation/boardfarm/leasing"
	"github.com/soc-validation/boardfarm/locking"
	"github.com/soc-validation/boardfarm/registry"
)

const (
	ServiceName = "boardfarm"
)

var (
	options      = configuration.BoardfarmOptions{}
	globalLogger = config.GetLogger("")
	sig          = make(chan os.Signal, 1)
)

func init() {
	lipgloss.SetColorProfile(termenv.ANSI256)

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
}

// ValidateOptions ensures that the options/configuration is valid.
func ValidateOptions() {
	flags, err := config.ValidateOptions(&options)
	if errors.Is(err, config.ErrPrintUsage) {
		flags.PrintDefaults()
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err)
	}
}

// createAndStartDebugHttpServer runs the pprof debug server. The
// "net/http/pprof" import registers its endpoints on the default mux.
// Important: this should be called from its own goroutine.
func createAndStartDebugHttpServer() {
	address := fmt.Sprintf(":%d", options.DebugPort)
	log.Printf("Serving debug HTTP server: %s\n", address)

	if err := http.ListenAndServe(address, nil); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

// createLockBackend builds the configured lock backend and its matching lease
// record store.
func createLockBackend() (locking.LockBackend, locking.LeaseStore) {
	switch options.LockBackend {
	case configuration.LockBackendRedis:
		// The lock backend and the lease store share one connection pool.
		client := redis.NewClient(&redis.Options{
			Addr:     options.RedisAddr,
			Password: options.RedisPassword,
			DB:       options.RedisDatabase,
		})
		backend, err := locking.NewRedisLockBackendWithClient(client)
		if err != nil {
			globalLogger.Error("Failed to initialize the Redis lock backend: %v", err)
			os.Exit(1)
		}
		return backend, locking.NewRedisLeaseStore(client)
	case configuration.LockBackendMemory:
		globalLogger.Warn("Using the in-memory lock backend. Leases will not survive a restart, " +
			"and peer instances will not see them.")
		return locking.NewMemoryLockBackend(), locking.NewMemoryLeaseStore()
	default:
		globalLogger.Error("Unknown lock backend \"%s\".", options.LockBackend)
		os.Exit(1)
		return nil, nil
	}
}

// registerWithConsul announces the service, returning a deregistration
// function. Registration is skipped when no Consul address is configured.
func registerWithConsul() func() {
	if options.ConsulAddr == "" {
		return func() {}
	}

	client, err := consul.NewClient(options.ConsulAddr)
	if err != nil {
		globalLogger.Error("Failed to connect to Consul at \"%s\": %v", options.ConsulAddr, err)
		os.Exit(1)
	}

	serviceID := fmt.Sprintf("%s-%s", ServiceName, uuid.NewString())
	if err = client.Register(ServiceName, serviceID, "", options.Port); err != nil {
		globalLogger.Error("Failed to register with Consul: %v", err)
		os.Exit(1)
	}

	return func() {
		if err := client.Deregister(serviceID); err != nil {
			globalLogger.Error("Failed to deregister from Consul: %v", err)
		}
	}
}

func main() {
	ValidateOptions()

	if options.PrettyPrintOptions {
		globalLogger.Info("Starting %s with options:\n%s", ServiceName, options.PrettyString(2))
	} else {
		globalLogger.Info("Starting %s with options: %s", ServiceName, options.String())
	}

	if options.BoardsConfigPath == "" {
		globalLogger.Error("No board inventory configured. Pass --boards-config.")
		os.Exit(1)
	}

	inventory, err := configuration.LoadBoardInventory(options.BoardsConfigPath)
	if err != nil {
		globalLogger.Error("Failed to load board inventory from \"%s\": %v", options.BoardsConfigPath, err)
		os.Exit(1)
	}

	boardRegistry := registry.NewBoardRegistry(inventory)
	tracker := health.NewTracker(boardRegistry, options.QuarantineThreshold, options.ClearQuarantineOnDayRollover)
	admission := queue.NewAdmissionQueue(options.QueueCapacity)

	strategy, err := leasing.NewAllocationStrategy(options.Strategy)
	if err != nil {
		globalLogger.Error("%v", err)
		os.Exit(1)
	}

	backend, store := createLockBackend()

	leaseManager := leasing.NewLeaseManager(boardRegistry, tracker, admission, backend, store, strategy,
		leasing.LeaseManagerOptions{
			LeaseTimeout: time.Duration(options.DefaultLeaseSeconds) * time.Second,
			MaxRetries:   options.MaxLockRetries,
			RetryBackoff: time.Duration(options.RetryBackoffMillis) * time.Millisecond,
			TickInterval: time.Duration(options.MatchingTickSeconds) * time.Second,
		})

	prometheusManager := metrics.NewBoardfarmPrometheusManager(options.PrometheusPort)
	if err = prometheusManager.Start(); err != nil {
		globalLogger.Error("Failed to start the Prometheus metrics manager: %v", err)
		os.Exit(1)
	}
	leaseManager.SetMetricsManager(prometheusManager)

	server := daemon.NewServer(daemon.ServerOptions{
		Port:                options.Port,
		DefaultLeaseSeconds: options.DefaultLeaseSeconds,
		DebugMode:           options.DebugMode,
	}, boardRegistry, leaseManager, tracker.SetHealth)

	leaseManager.Start()
	server.Start()

	deregister := registerWithConsul()

	if options.DebugMode {
		go createAndStartDebugHttpServer()
	}

	fmt.Println(utils.GreenStyle.Render(fmt.Sprintf(
		"%s is up: %d board(s), API on :%d, metrics on :%d.",
		ServiceName, boardRegistry.Size(), options.Port, options.PrometheusPort)))

	received := <-sig
	globalLogger.Info("Received signal %v. Shutting down.", received)

	deregister()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		globalLogger.Error("Failed to cleanly shut down the API server: %v", err)
	}

	if err = prometheusManager.Stop(); err != nil && !errors.Is(err, metrics.ErrMetricsManagerNotRunning) {
		globalLogger.Error("Failed to cleanly shut down the metrics manager: %v", err)
	}

	if err = leaseManager.Close(); err != nil {
		globalLogger.Error("Failed to cleanly shut down the lease manager: %v", err)
	}

	fmt.Println(utils.GrayStyle.Render(fmt.Sprintf("%s stopped.", ServiceName)))
}
