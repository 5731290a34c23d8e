package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/VectorBits/permscan/src/internal/config"
	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/VectorBits/permscan/src/internal/metrics"
	"github.com/VectorBits/permscan/src/internal/model"
	"github.com/VectorBits/permscan/src/internal/permission"
	"github.com/VectorBits/permscan/src/internal/proxy"
	"github.com/VectorBits/permscan/src/internal/report"
	"github.com/VectorBits/permscan/src/internal/storage"
	"github.com/VectorBits/permscan/src/internal/ui"
)

// StorageReader reads one storage word of an account. A nil block means latest.
type StorageReader interface {
	storage.StorageReader
}

// Progress receives one Increment per processed address.
type Progress interface {
	Increment()
	PrintMsg(msg string)
	Finish()
}

type Options struct {
	Chain    string
	Block    *big.Int
	Metrics  *metrics.ScanMetrics
	Progress Progress
}

// Skipped records an address that failed with a recoverable error.
type Skipped struct {
	Address string
	Err     error
}

type Result struct {
	Report   *report.Report
	Targets  []string
	Skipped  []Skipped
	Duration time.Duration
}

// Runner analyzes the configured addresses one after the other.
type Runner struct {
	loader   ModelLoader
	reader   StorageReader
	chain    string
	block    *big.Int
	metrics  *metrics.ScanMetrics
	progress Progress
}

func NewRunner(loader ModelLoader, reader StorageReader, opts Options) *Runner {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewScanMetrics()
	}
	return &Runner{
		loader:   loader,
		reader:   m.ObserveReader(reader),
		chain:    opts.Chain,
		block:    opts.Block,
		metrics:  m,
		progress: opts.Progress,
	}
}

// Run processes every contract entry. Recoverable failures skip the address;
// fatal ones abort the run without a report.
func (r *Runner) Run(ctx context.Context, contracts *config.ContractsFile) (*Result, error) {
	if contracts == nil || len(contracts.Contracts) == 0 {
		return nil, fmt.Errorf("%w: no contracts configured", ErrConfiguration)
	}
	chain := r.chain
	if chain == "" {
		chain = contracts.ChainName
	}

	start := time.Now()
	targets := permission.NewTargetAccumulator()
	result := &Result{Report: report.New()}
	resolver := proxy.NewResolver(r.reader, r.loader, chain, r.block)
	reconciler := storage.NewReconciler(r.reader, r.block)

	for i, entry := range contracts.Contracts {
		logger.Info("[%d/%d] Analyzing %s (%s)", i+1, len(contracts.Contracts), entry.Name, entry.Address)
		addrStart := time.Now()

		e, err := r.scan(ctx, chain, entry, targets, resolver, reconciler)
		r.metrics.ScanDuration.Observe(time.Since(addrStart).Seconds())
		if err != nil {
			if IsFatal(err) || ctx.Err() != nil {
				r.metrics.AddressesScanned.WithLabelValues(metrics.StatusFailed).Inc()
				if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
					err = fmt.Errorf("%w: %w", ctx.Err(), err)
				}
				return nil, fmt.Errorf("%s: %w", entry.Address, err)
			}
			r.metrics.AddressesScanned.WithLabelValues(metrics.StatusSkipped).Inc()
			result.Skipped = append(result.Skipped, Skipped{Address: entry.Address, Err: err})
			r.skipped(entry.Address, err)
			continue
		}

		r.metrics.AddressesScanned.WithLabelValues(metrics.StatusOK).Inc()
		result.Report.Add(e)
		if r.progress != nil {
			r.progress.Increment()
		}
	}

	if r.progress != nil {
		r.progress.Finish()
	}
	result.Targets = targets.Names()
	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) skipped(address string, err error) {
	if r.progress == nil {
		logger.Warn("Skipping %s: %v", address, err)
		return
	}
	logger.InfoFileOnly("Skipping %s: %v", address, err)
	r.progress.PrintMsg(ui.FormatWarning("Skipping %s: %v", address, err))
	r.progress.Increment()
}

func (r *Runner) scan(ctx context.Context, chain string, entry config.ContractEntry, targets *permission.TargetAccumulator, resolver *proxy.Resolver, reconciler *storage.Reconciler) (*report.Entry, error) {
	target := chain + ":" + entry.Address
	prog, err := r.loader.Load(ctx, target)
	if err != nil {
		return nil, classify(err)
	}

	contracts := prog.ContractsNamed(entry.Name)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: %s is not among the contracts of %s (%s)", ErrMatch, entry.Name, entry.Address, contractNames(prog))
	}

	contracts, link, err := resolver.Resolve(ctx, contracts, entry.Address, entry.ImplementationName)
	if err != nil {
		return nil, classify(err)
	}

	out := report.NewEntry(entry.Address)
	if link != nil {
		out.ProxyAddress = link.Proxy
		out.ImplementationAddress = link.Implementation
	}

	builder := permission.NewBuilder(targets)
	for _, c := range contracts {
		out.SetContract(builder.Contract(c))
	}

	if _, err := reconciler.Reconcile(ctx, out, contracts, targets, entry.Address); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if link != nil {
		r.metrics.ProxiesResolved.Inc()
	}
	r.metrics.RecordsEmitted.Add(float64(len(out.Records())))
	return out, nil
}

func contractNames(prog *model.Program) string {
	names := make([]string, 0, len(prog.Contracts))
	for _, c := range prog.Contracts {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
