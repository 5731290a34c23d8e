package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"golang.org/x/sync/singleflight"

	"github.com/VectorBits/permscan/src/internal/astparser"
	"github.com/VectorBits/permscan/src/internal/download"
	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/VectorBits/permscan/src/internal/model"
	"github.com/VectorBits/permscan/src/internal/solc"
)

// ModelLoader turns a target into a program model. A target is either
// chain:0xaddress or a local .sol file or directory.
type ModelLoader interface {
	Load(ctx context.Context, target string) (*model.Program, error)
}

type SourceFetcher interface {
	FetchSource(ctx context.Context, address string) (*download.Source, error)
}

type Compiler interface {
	Compile(ctx context.Context, version string, in *solc.StandardInput) ([]byte, error)
}

type LoaderOptions struct {
	Fetcher    SourceFetcher
	Compiler   Compiler
	Exporter   *download.Exporter
	Remappings []string
}

// Loader caches programs per target. Concurrent loads of one target share a
// single compilation.
type Loader struct {
	fetcher    SourceFetcher
	compiler   Compiler
	exporter   *download.Exporter
	remappings []string
	fs         afs.Service

	cache sync.Map
	group singleflight.Group
}

func NewLoader(opts LoaderOptions) *Loader {
	compiler := opts.Compiler
	if compiler == nil {
		compiler = solc.GetManager()
	}
	return &Loader{
		fetcher:    opts.Fetcher,
		compiler:   compiler,
		exporter:   opts.Exporter,
		remappings: opts.Remappings,
		fs:         afs.New(),
	}
}

// SplitTarget separates chain:0xaddress. ok is false for anything else.
func SplitTarget(target string) (chain, address string, ok bool) {
	idx := strings.LastIndex(target, ":")
	if idx <= 0 {
		return "", "", false
	}
	chain, address = target[:idx], target[idx+1:]
	if strings.Contains(chain, "/") || !common.IsHexAddress(address) {
		return "", "", false
	}
	return chain, address, true
}

func (l *Loader) Load(ctx context.Context, target string) (*model.Program, error) {
	if v, ok := l.cache.Load(target); ok {
		return v.(*model.Program), nil
	}
	v, err, _ := l.group.Do(target, func() (interface{}, error) {
		if vv, ok := l.cache.Load(target); ok {
			return vv, nil
		}
		prog, err := l.load(ctx, target)
		if err != nil {
			return nil, err
		}
		l.cache.Store(target, prog)
		return prog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Program), nil
}

func (l *Loader) load(ctx context.Context, target string) (*model.Program, error) {
	var (
		input   *solc.StandardInput
		version string
		err     error
	)
	if _, address, ok := SplitTarget(target); ok {
		input, version, err = l.remote(ctx, address)
	} else {
		input, err = l.local(ctx, target)
	}
	if err != nil {
		return nil, classify(err)
	}

	input.Prepare(l.remappings)
	output, err := l.compiler.Compile(ctx, version, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompilation, target, err)
	}
	parsed, err := astparser.ParseOutput(output, input.Contents())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompilation, target, err)
	}
	prog, err := parsed.BuildProgram(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompilation, target, err)
	}
	logger.Debug("Loaded %s: %d contracts", target, len(prog.Contracts))
	return prog, nil
}

func (l *Loader) remote(ctx context.Context, address string) (*solc.StandardInput, string, error) {
	if l.fetcher == nil {
		return nil, "", fmt.Errorf("%w: no explorer configured to fetch %s", ErrConfiguration, address)
	}
	src, err := l.fetcher.FetchSource(ctx, address)
	if err != nil {
		return nil, "", err
	}
	if l.exporter != nil {
		if dir, err := l.exporter.Export(ctx, src); err != nil {
			logger.Warn("Failed to export sources of %s: %v", address, err)
		} else {
			logger.InfoFileOnly("Sources of %s exported to %s", address, dir)
		}
	}
	return src.Input, src.Compiler, nil
}

// local reads one .sol file or every .sol file below a directory.
func (l *Loader) local(ctx context.Context, location string) (*solc.StandardInput, error) {
	URL := url.Normalize(location, file.Scheme)
	obj, err := l.fs.Object(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	input := &solc.StandardInput{Language: "Solidity", Sources: map[string]solc.SourceFile{}}

	if !obj.IsDir() {
		data, err := l.fs.DownloadWithURL(ctx, URL)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", location, err)
		}
		input.Sources[obj.Name()] = solc.SourceFile{Content: string(data)}
		return input, nil
	}

	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return !strings.HasPrefix(info.Name(), ".") && info.Name() != "node_modules", nil
		}
		if !strings.HasSuffix(info.Name(), ".sol") {
			return true, nil
		}
		var data []byte
		var err error
		if reader != nil {
			data, err = io.ReadAll(reader)
		} else {
			data, err = l.fs.DownloadWithURL(ctx, url.Join(baseURL, path.Join(parent, info.Name())))
		}
		if err != nil {
			return false, err
		}
		input.Sources[path.Join(parent, info.Name())] = solc.SourceFile{Content: string(data)}
		return true, nil
	}
	if err := l.fs.Walk(ctx, URL, visitor); err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", location, err)
	}
	if len(input.Sources) == 0 {
		return nil, fmt.Errorf("no .sol files found in %s", location)
	}
	return input, nil
}
