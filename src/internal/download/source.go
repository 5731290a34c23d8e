package download

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/VectorBits/permscan/src/internal/solc"
)

// Source is a verified contract ready to compile.
type Source struct {
	Address  string
	Name     string
	Compiler string
	Input    *solc.StandardInput
}

// FetchSource downloads and decodes the verified source of address.
func (c *Client) FetchSource(ctx context.Context, address string) (*Source, error) {
	info, err := c.GetContractDetails(ctx, address)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(info.CompilerVersion), "vyper") {
		return nil, fmt.Errorf("%w: %s is a Vyper contract", ErrNotVerified, address)
	}
	input, err := solc.ParseSourceCode(info.SourceCode, info.ContractName)
	if err != nil {
		return nil, err
	}
	return &Source{
		Address:  address,
		Name:     info.ContractName,
		Compiler: solc.ParseCompilerVersion(info.CompilerVersion),
		Input:    input,
	}, nil
}

// Exporter saves downloaded sources below a base location, one directory per address.
type Exporter struct {
	BaseURL string
	fs      afs.Service
}

func NewExporter(baseURL string) *Exporter {
	return &Exporter{BaseURL: url.Normalize(baseURL, file.Scheme), fs: afs.New()}
}

// Export writes every file of src and returns the directory it used.
func (e *Exporter) Export(ctx context.Context, src *Source) (string, error) {
	dir := url.Join(e.BaseURL, strings.ToLower(src.Address))
	for _, p := range src.Input.Paths() {
		clean := strings.TrimPrefix(path.Clean("/"+p), "/")
		target := url.Join(dir, clean)
		if err := e.fs.Upload(ctx, target, 0644, bytes.NewReader([]byte(src.Input.Sources[p].Content))); err != nil {
			return "", fmt.Errorf("failed to export %s: %w", target, err)
		}
	}
	logger.Debug("Exported %d source file(s) of %s to %s", len(src.Input.Sources), src.Address, dir)
	return dir, nil
}
