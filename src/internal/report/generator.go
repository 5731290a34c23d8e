package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/VectorBits/permscan/src/internal/report/renderers"
)

// Summary describes a run for the Markdown rendition of a report.
type Summary struct {
	Target   string
	Chain    string
	Block    string
	ScanTime time.Time
	Skipped  []string
}

type Generator interface {
	Generate(report *Report, summary Summary) (string, error)
}

type MarkdownGenerator struct {
	renderer *renderers.MarkdownRenderer
}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{renderer: renderers.NewMarkdownRenderer()}
}

// Generate renders a human readable summary of the privileged functions of every address.
func (g *MarkdownGenerator) Generate(report *Report, summary Summary) (string, error) {
	var result strings.Builder

	result.WriteString("# Permission Scan Report\n\n")
	result.WriteString(fmt.Sprintf("**Target**: %s\n", summary.Target))
	result.WriteString(fmt.Sprintf("**Chain**: %s\n", summary.Chain))
	result.WriteString(fmt.Sprintf("**Block**: %s\n", summary.Block))
	result.WriteString(fmt.Sprintf("**Scan Time**: %s\n\n", summary.ScanTime.Format("2006-01-02 15:04:05")))

	proxies, guarded := 0, 0
	for _, addr := range report.Addresses() {
		e := report.Entry(addr)
		if e.IsProxy() {
			proxies++
		}
		guarded += len(e.Records())
	}
	result.WriteString("## Scan Statistics\n\n")
	result.WriteString(fmt.Sprintf("- **Addresses**: %d\n", report.Len()))
	result.WriteString(fmt.Sprintf("- **Proxies**: %d\n", proxies))
	result.WriteString(fmt.Sprintf("- **Guarded Functions**: %d\n", guarded))
	if len(summary.Skipped) > 0 {
		result.WriteString(fmt.Sprintf("- **Skipped**: %s\n", strings.Join(summary.Skipped, ", ")))
	}
	result.WriteString("\n")

	result.WriteString("## Detailed Results\n\n")
	addrs := report.Addresses()
	for i, addr := range addrs {
		e := report.Entry(addr)
		result.WriteString(fmt.Sprintf("## Contract Address: `%s`\n\n", addr))
		if e.IsProxy() {
			result.WriteString(fmt.Sprintf("**Proxy**: `%s`\n", e.ProxyAddress))
			result.WriteString(fmt.Sprintf("**Implementation**: `%s`\n\n", e.ImplementationAddress))
		}
		for _, c := range e.Contracts {
			rows := make([]string, 0, len(c.Functions))
			for _, f := range c.Functions {
				rows = append(rows, g.renderer.RenderFunctionRow(f.Function, f.Modifiers, f.SenderConditions, f.Written))
			}
			result.WriteString(g.renderer.RenderContract(c.Name, rows))
		}

		names := sortedKeys(e.StorageValues)
		values := make([]string, len(names))
		for j, name := range names {
			values[j] = fmt.Sprint(e.StorageValues[name])
		}
		result.WriteString(g.renderer.RenderStorageValues(names, values))

		if i < len(addrs)-1 {
			result.WriteString("---\n\n")
		}
	}

	return result.String(), nil
}
