package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/VectorBits/permscan/src/internal/config"
	"github.com/VectorBits/permscan/src/internal/download"
	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/VectorBits/permscan/src/internal/metrics"
	"github.com/VectorBits/permscan/src/internal/report"
	"github.com/VectorBits/permscan/src/internal/scanner"
	"github.com/VectorBits/permscan/src/internal/solc"
	"github.com/VectorBits/permscan/src/internal/store"
	"github.com/VectorBits/permscan/src/internal/ui"
)

func Execute(ctx context.Context, cfg *CLIConfig) error {
	logPath, err := logger.InitLogger("logs")
	if err != nil {
		ui.LogWarn("Failed to init logger: %v", err)
	} else {
		defer logger.Close()
	}
	logger.SetVerbose(cfg.Verbose)
	logger.Debug("Logging to %s", logPath)

	var envFiles []string
	if cfg.EnvFile != "" {
		envFiles = append(envFiles, cfg.EnvFile)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return fmt.Errorf("%w: failed to load environment: %w", scanner.ErrConfiguration, err)
	}

	appConfig, err := config.LoadConfig(cfg.SettingsFile)
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	return ExecuteScan(ctx, cfg.MergeConfigs(appConfig), appConfig)
}

func loadContracts(ctx context.Context, sc config.ScanConfiguration) (*config.ContractsFile, error) {
	if sc.Address != "" {
		project := sc.Project
		if project == "" {
			project = sc.Name
		}
		return config.Single(sc.Chain, project, sc.Name, sc.Address, sc.Implementation)
	}
	return config.LoadContracts(ctx, sc.ContractsFile)
}

// ExecuteScan runs the analysis and writes the report and the optional extras.
// Nothing is written when the run fails with a fatal error.
func ExecuteScan(ctx context.Context, sc config.ScanConfiguration, appConfig *config.AppConfig) error {
	contracts, err := loadContracts(ctx, sc)
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	chainName := sc.Chain
	if chainName == "" {
		chainName = contracts.ChainName
	}
	chain, err := appConfig.GetChainConfig(chainName)
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	block, err := config.ParseBlock(sc.Block)
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	keys := chain.Explorer.KeyManager()
	if keys == nil {
		return fmt.Errorf("%w: ETHERSCAN_API_KEY is not set and no explorer keys are configured for %s", scanner.ErrConfiguration, chain.Name)
	}

	ui.LogSuccess("Project %s: %d contract(s) on %s at block %s", contracts.ProjectName, len(contracts.Contracts), chain.Name, sc.Block)

	rpcManager, err := config.NewRPCManager(chain.Name, chain.RPCURLs, sc.Timeout, sc.Proxy)
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrNetwork, err)
	}
	defer rpcManager.Close()
	logger.Info("Using RPC %s for %s", rpcManager.GetCurrentURL(), rpcManager.GetChainName())

	explorer, err := download.NewClient(download.EtherscanConfig{
		APIKeyManager:     keys,
		BaseURL:           chain.Explorer.BaseURL,
		ChainID:           chain.ChainID,
		Proxy:             sc.Proxy,
		Timeout:           sc.Timeout,
		RequestsPerSecond: chain.Explorer.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	defer explorer.Close()

	exportDir := sc.ExportDir
	if exportDir == "" {
		exportDir = filepath.Join("results", report.SanitizeFilenameComponent(contracts.ProjectName))
	}
	if appConfig.Solc.Binary != "" {
		solc.GetManager().Binary = appConfig.Solc.Binary
	}
	loader := scanner.NewLoader(scanner.LoaderOptions{
		Fetcher:    explorer,
		Exporter:   download.NewExporter(exportDir),
		Remappings: appConfig.Solc.Remappings,
	})

	scanMetrics := metrics.NewScanMetrics()
	startedAt := time.Now()
	runner := scanner.NewRunner(loader, rpcManager, scanner.Options{
		Chain:    chain.Name,
		Block:    block,
		Metrics:  scanMetrics,
		Progress: ui.NewProgressBar(len(contracts.Contracts), "Scanning"),
	})
	result, err := runner.Run(ctx, contracts)
	if err != nil {
		return err
	}

	reporter := report.NewReporter(report.NewMarkdownGenerator(), report.NewURLStorage(""))
	location, err := reporter.SaveJSON(ctx, result.Report, sc.Output)
	if err != nil {
		return err
	}
	ui.LogSuccess("Report written to %s", location)

	skipped := make([]string, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped = append(skipped, s.Address)
	}

	if sc.MarkdownDir != "" {
		md := report.NewReporter(report.NewMarkdownGenerator(), report.NewURLStorage(sc.MarkdownDir))
		name := fmt.Sprintf("permissions_%s_%s.md", report.SanitizeFilenameComponent(contracts.ProjectName), startedAt.Format("20060102_150405"))
		summary := report.Summary{
			Target:   contracts.ProjectName,
			Chain:    chain.Name,
			Block:    sc.Block,
			ScanTime: startedAt,
			Skipped:  skipped,
		}
		if location, err := md.SaveMarkdown(ctx, result.Report, summary, name); err != nil {
			ui.LogWarn("Failed to write Markdown summary: %v", err)
		} else {
			ui.LogSuccess("Markdown summary written to %s", location)
		}
	}

	if sc.Database.DSN != "" {
		if err := recordRun(ctx, sc, contracts, chain.Name, startedAt, result); err != nil {
			ui.LogWarn("Failed to record run history: %v", err)
		}
	}

	if sc.MetricsFile != "" {
		if err := scanMetrics.WriteTextfile(sc.MetricsFile); err != nil {
			ui.LogWarn("Failed to write metrics: %v", err)
		}
	}

	records := 0
	for _, addr := range result.Report.Addresses() {
		records += len(result.Report.Entry(addr).Records())
	}
	ui.PrintStats(len(contracts.Contracts), result.Report.Len(), len(result.Skipped), records, result.Duration)
	return nil
}

func recordRun(ctx context.Context, sc config.ScanConfiguration, contracts *config.ContractsFile, chain string, startedAt time.Time, result *scanner.Result) error {
	db, err := config.OpenDatabase(sc.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	history, err := store.New(db)
	if err != nil {
		return err
	}
	run := &store.Run{
		Project:    contracts.ProjectName,
		Chain:      chain,
		Block:      sc.Block,
		StartedAt:  startedAt,
		DurationMs: result.Duration.Milliseconds(),
		Skipped:    len(result.Skipped),
	}
	drifted, err := history.Record(ctx, run, result.Report)
	if err != nil {
		return err
	}
	for _, addr := range drifted {
		ui.LogWarn("Permission structure of %s changed since the previous run", addr)
	}
	logger.Info("Recorded run %d (%d drifted)", run.ID, len(drifted))
	return nil
}
