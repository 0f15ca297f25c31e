package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jkolyakov/blockchain-simulator/api"
	"github.com/jkolyakov/blockchain-simulator/logger"
	"github.com/jkolyakov/blockchain-simulator/simulation"
	"github.com/jkolyakov/blockchain-simulator/stats"
	"github.com/jkolyakov/blockchain-simulator/tracestore"
)

func main() {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(viper.GetString("log.app_log_file"), viper.GetString("log.level")); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	cfg := simulation.DefaultConfig()
	if err := viper.UnmarshalKey("simulation", &cfg); err != nil {
		logger.Logger.Fatal("Failed to parse simulation config", zap.Error(err))
	}

	logger.Logger.Info("Starting simulation",
		zap.String("consensus", cfg.Consensus),
		zap.Int("nodes", cfg.NodeCount),
		zap.String("topology", cfg.Topology.Kind),
		zap.Int64("seed", cfg.Seed),
	)

	sim, err := simulation.NewSimulation(cfg, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to build simulation", zap.Error(err))
	}

	result, err := sim.Run()
	if err != nil {
		logger.Logger.Fatal("Simulation failed", zap.Error(err))
	}

	tolerance := viper.GetUint64("stats.convergence_tolerance")
	summary := stats.Collect(result, tolerance)
	report(result, summary)

	if viper.GetBool("leveldb.enabled") {
		store, err := tracestore.Open(viper.GetString("leveldb.path"))
		if err != nil {
			logger.Logger.Fatal("Failed to open trace store", zap.Error(err))
		}
		defer store.Close()
		run := viper.GetString("leveldb.run_name")
		if err := store.SaveRun(run, result); err != nil {
			logger.Logger.Fatal("Failed to persist run", zap.Error(err))
		}
		logger.Logger.Info("Run persisted", zap.String("run", run))
	}

	if viper.GetBool("server.enabled") {
		serve(result, summary)
	}
}

func report(result *simulation.Result, summary stats.Summary) {
	fmt.Printf("consensus        %s\n", result.Consensus)
	fmt.Printf("final-simtime    %.3f\n", result.FinalTime)
	fmt.Printf("blocks-mined     %d\n", summary.BlocksMined)
	fmt.Printf("fork-count       %d\n", summary.ForkCount)
	fmt.Printf("rejections       %d\n", summary.Rejections)
	fmt.Printf("dropped          %d\n", summary.Dropped)
	fmt.Printf("orphans-pending  %d\n", summary.UnresolvedOrphans)
	if summary.Propagation.Count > 0 {
		fmt.Printf("propagation      mean %.3f p50 %.3f p95 %.3f max %.3f\n",
			summary.Propagation.Mean, summary.Propagation.P50, summary.Propagation.P95, summary.Propagation.Max)
	}
	if summary.Converged {
		fmt.Printf("converged        t=%.3f\n", summary.ConvergenceTime)
	} else {
		fmt.Printf("converged        no\n")
	}
	for _, id := range sortedNodes(result) {
		snap := result.Snapshots[id]
		fmt.Printf("node %-3d blocks %-5d head-height %-5d head %s\n",
			snap.Node, snap.BlockCount, snap.HeadHeight, snap.Head)
	}
}

func sortedNodes(result *simulation.Result) []simulation.NodeID {
	ids := make([]simulation.NodeID, 0, len(result.Snapshots))
	for id := range result.Snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func serve(result *simulation.Result, summary stats.Summary) {
	h := api.NewHandler(result, summary, logger.Logger)
	r := mux.NewRouter()
	api.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", viper.GetInt("server.port")),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()
	logger.Logger.Info("Results server running", zap.Int("port", viper.GetInt("server.port")))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	srv.Close()
}
