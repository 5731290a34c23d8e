package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VectorBits/permscan/src/internal/config"
	"github.com/VectorBits/permscan/src/internal/scanner"
	"github.com/VectorBits/permscan/src/internal/ui"
)

type CLIConfig struct {
	ContractsFile string
	SettingsFile  string
	EnvFile       string
	Chain         string
	Block         string
	Output        string

	Address        string
	Name           string
	Implementation string
	Project        string

	MarkdownDir string
	ExportDir   string
	MetricsFile string
	DBDSN       string
	DBDriver    string

	Proxy   string
	Timeout time.Duration
	Verbose bool
}

// Validate checks the flag combination. Errors wrap scanner.ErrConfiguration.
func (c *CLIConfig) Validate() error {
	if c.Address != "" {
		if !common.IsHexAddress(c.Address) {
			return fmt.Errorf("%w: invalid address: %s", scanner.ErrConfiguration, c.Address)
		}
		if c.Name == "" {
			return fmt.Errorf("%w: -name is required with -addr", scanner.ErrConfiguration)
		}
		if c.Chain == "" {
			return fmt.Errorf("%w: -chain is required with -addr", scanner.ErrConfiguration)
		}
	} else {
		if c.Name != "" || c.Implementation != "" {
			return fmt.Errorf("%w: -name and -impl need -addr", scanner.ErrConfiguration)
		}
		if c.ContractsFile == "" {
			return fmt.Errorf("%w: -config or -addr is required", scanner.ErrConfiguration)
		}
	}
	if _, err := config.ParseBlock(c.Block); err != nil {
		return fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: -o must not be empty", scanner.ErrConfiguration)
	}
	if c.Timeout <= 0 {
		c.Timeout = config.DefaultScanConfiguration().Timeout
	}
	return nil
}

// MergeConfigs layers the CLI flags over the defaults and settings.yaml.
func (c *CLIConfig) MergeConfigs(appConfig *config.AppConfig) config.ScanConfiguration {
	cfg := config.DefaultScanConfiguration()

	if appConfig != nil {
		cfg.Database = appConfig.Database
	}

	cfg.ContractsFile = c.ContractsFile
	cfg.SettingsFile = c.SettingsFile
	cfg.Chain = c.Chain
	if c.Block != "" {
		cfg.Block = c.Block
	}
	if c.Output != "" {
		cfg.Output = c.Output
	}
	cfg.Address = c.Address
	cfg.Name = c.Name
	cfg.Implementation = c.Implementation
	cfg.Project = c.Project
	cfg.MarkdownDir = c.MarkdownDir
	cfg.ExportDir = c.ExportDir
	cfg.MetricsFile = c.MetricsFile
	if c.DBDSN != "" {
		cfg.Database.DSN = c.DBDSN
	}
	if c.DBDriver != "" {
		cfg.Database.Driver = c.DBDriver
	}
	cfg.Proxy = c.Proxy
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	cfg.Verbose = c.Verbose
	return cfg
}

func showHelp(w io.Writer, topic string) {
	switch topic {
	case "config", "contracts":
		showContractsHelp(w)
	case "addr", "name", "impl", "target":
		showTargetHelp(w)
	case "block":
		showBlockHelp(w)
	case "db", "db-driver", "database":
		showDatabaseHelp(w)
	case "chain":
		showChainHelp(w)
	default:
		showGeneralHelp(w)
	}
}

func showGeneralHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"USAGE:"+ui.Reset)
	fmt.Fprintln(w, "  permscan [OPTIONS]")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"INPUT:"+ui.Reset)
	fmt.Fprintf(w, "  %-25s %s\n", "-config <file>", "Contracts file (default: contracts.json)")
	fmt.Fprintf(w, "  %-25s %s\n", "-addr <address>", "Scan a single address instead of a contracts file")
	fmt.Fprintf(w, "  %-25s %s\n", "-name <contract>", "Contract name of -addr")
	fmt.Fprintf(w, "  %-25s %s\n", "-impl <contract>", "Implementation contract name when -addr is a proxy")
	fmt.Fprintf(w, "  %-25s %s\n", "-project <name>", "Project name for -addr")
	fmt.Fprintf(w, "  %-25s %s\n", "-chain <name>", "Chain name (default: Chain_Name of the contracts file)")
	fmt.Fprintf(w, "  %-25s %s\n", "-block <block>", "Block to read storage at (default: latest)")
	fmt.Fprintf(w, "  %-25s %s\n", "-settings <file>", "settings.yaml path (default: search config/)")
	fmt.Fprintf(w, "  %-25s %s\n", "-env <file>", "Environment file (default: .env)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"OUTPUT:"+ui.Reset)
	fmt.Fprintf(w, "  %-25s %s\n", "-o <path>", "Report path or URL (default: permissions.json)")
	fmt.Fprintf(w, "  %-25s %s\n", "-md <dir>", "Also write a Markdown summary to dir")
	fmt.Fprintf(w, "  %-25s %s\n", "-export-dir <dir>", "Downloaded sources (default: results/<project>)")
	fmt.Fprintf(w, "  %-25s %s\n", "-db <dsn>", "Record the run in a history database")
	fmt.Fprintf(w, "  %-25s %s\n", "-db-driver <driver>", "sqlite | postgres | mysql (default: sqlite)")
	fmt.Fprintf(w, "  %-25s %s\n", "-metrics-file <path>", "Write Prometheus metrics in textfile format")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"NETWORK:"+ui.Reset)
	fmt.Fprintf(w, "  %-25s %s\n", "-proxy <url>", "Proxy URL (HTTP/SOCKS5) for RPC and explorer requests")
	fmt.Fprintf(w, "  %-25s %s\n", "-timeout <duration>", "Per-request timeout (default: 30s)")
	fmt.Fprintf(w, "  %-25s %s\n", "-v", "Verbose output")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"HELP:"+ui.Reset)
	fmt.Fprintln(w, "  permscan [OPTION] --help   Show detailed help for an option")
	fmt.Fprintln(w)

	fmt.Fprintln(w, ui.Cyan+"EXAMPLES:"+ui.Reset)
	fmt.Fprintln(w, "  permscan -config contracts.json")
	fmt.Fprintln(w, "  permscan -addr 0x123... -name Vault -chain mainnet -block 19000000 -md reports")
}

func showContractsHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"CONTRACTS FILE (-config)"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"JSON list of the addresses to analyze, local path or URL."+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, `  {
    "Chain_Name": "mainnet",
    "Project_Name": "example",
    "Contracts": [
      {"name": "Vault", "address": "0x..."},
      {"name": "TransparentUpgradeableProxy", "address": "0x...", "implementation_name": "VaultV2"}
    ]
  }`)
}

func showTargetHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"SINGLE TARGET (-addr)"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"Scan one address without a contracts file."+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-25s %s\n", "-addr <address>", "Contract address (required)")
	fmt.Fprintf(w, "  %-25s %s\n", "-name <contract>", "Contract name in the verified source (required)")
	fmt.Fprintf(w, "  %-25s %s\n", "-impl <contract>", "Implementation name, required when the contract is a proxy")
	fmt.Fprintf(w, "  %-25s %s\n", "-chain <name>", "Chain name (required)")
	fmt.Fprintf(w, "  %-25s %s\n", "-project <name>", "Project name (default: the contract name)")
}

func showBlockHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"BLOCK (-block)"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"Storage values are read at this block. Old blocks need an archive node."+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  latest | earliest | pending | safe | finalized | <decimal> | <0xhex>")
}

func showDatabaseHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"RUN HISTORY (-db)"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"Every run is stored with a digest per address. A changed digest is reported as drift."+ui.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  permscan -config contracts.json -db data/history.db")
	fmt.Fprintln(w, "  permscan -config contracts.json -db-driver postgres -db \"host=localhost user=scan dbname=scan\"")
}

func showChainHelp(w io.Writer) {
	fmt.Fprintln(w, ui.Cyan+"CHAIN (-chain)"+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"RPC URLs come from <CHAIN>_RPC and settings.yaml, e.g. mainnet -> MAINNET_RPC."+ui.Reset)
	fmt.Fprintln(w, ui.Gray+"Verified sources need ETHERSCAN_API_KEY or explorer keys in settings.yaml."+ui.Reset)
}

// helpTopic returns the topic of "-flag --help", or "" for a bare "--help".
func helpTopic(args []string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i+1] == "--help" || args[i+1] == "-h" {
			return strings.TrimLeft(args[i], "-"), true
		}
	}
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return "", true
		}
	}
	return "", false
}

// ParseFlags parses args (without the program name). Help requests print the
// matching topic and return flag.ErrHelp.
func ParseFlags(args []string) (*CLIConfig, error) {
	if topic, ok := helpTopic(args); ok {
		showHelp(os.Stdout, topic)
		return nil, flag.ErrHelp
	}

	fs := flag.NewFlagSet("permscan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	contractsFile := fs.String("config", "contracts.json", "Contracts file")
	settings := fs.String("settings", "", "settings.yaml path")
	envFile := fs.String("env", "", "Environment file")
	chain := fs.String("chain", "", "Chain name")
	block := fs.String("block", "latest", "Block to read storage at")
	output := fs.String("o", "permissions.json", "Report path or URL")

	addr := fs.String("addr", "", "Single target address")
	name := fs.String("name", "", "Contract name of -addr")
	impl := fs.String("impl", "", "Implementation contract name of -addr")
	project := fs.String("project", "", "Project name of -addr")

	mdDir := fs.String("md", "", "Markdown summary directory")
	exportDir := fs.String("export-dir", "", "Downloaded source directory")
	metricsFile := fs.String("metrics-file", "", "Prometheus textfile path")
	dbDSN := fs.String("db", "", "Run history database DSN")
	dbDriver := fs.String("db-driver", "", "Run history database driver")

	proxy := fs.String("proxy", "", "Optional HTTP proxy, e.g. http://127.0.0.1:7897")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-request timeout")
	verbose := fs.Bool("v", false, "Verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", scanner.ErrConfiguration, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments: %s", scanner.ErrConfiguration, strings.Join(fs.Args(), " "))
	}

	cfg := &CLIConfig{
		ContractsFile:  strings.TrimSpace(*contractsFile),
		SettingsFile:   strings.TrimSpace(*settings),
		EnvFile:        strings.TrimSpace(*envFile),
		Chain:          strings.TrimSpace(*chain),
		Block:          strings.TrimSpace(*block),
		Output:         strings.TrimSpace(*output),
		Address:        strings.TrimSpace(*addr),
		Name:           strings.TrimSpace(*name),
		Implementation: strings.TrimSpace(*impl),
		Project:        strings.TrimSpace(*project),
		MarkdownDir:    strings.TrimSpace(*mdDir),
		ExportDir:      strings.TrimSpace(*exportDir),
		MetricsFile:    strings.TrimSpace(*metricsFile),
		DBDSN:          strings.TrimSpace(*dbDSN),
		DBDriver:       strings.TrimSpace(*dbDriver),
		Proxy:          strings.TrimSpace(*proxy),
		Timeout:        *timeout,
		Verbose:        *verbose,
	}
	if cfg.Address != "" {
		cfg.ContractsFile = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Run() error {
	cfg, err := ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()

	go func() {
		count := 0
		for range sigChan {
			count++
			if count == 1 {
				fmt.Fprintln(os.Stderr, "\nInterrupt received, stopping... (press Ctrl+C again to force exit)")
				cancel()
				continue
			}
			fmt.Fprintln(os.Stderr, "\nForce exiting...")
			os.Exit(130)
		}
	}()

	return Execute(ctx, cfg)
}

// PrintFatal reports err and exits with status 1. An interrupted run exits
// without a message.
func PrintFatal(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, ui.Red+"Error:"+ui.Reset, err)
	os.Exit(1)
}
