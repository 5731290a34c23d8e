package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
	Bold   = "\033[1m"
)

var (
	out io.Writer = os.Stdout
	mu  sync.Mutex
)

// SetOutput redirects console output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
}

func PrintBanner(version string) {
	banner := `
  _ __   ___ _ __ _ __ ___  ___  ___ __ _ _ __
 | '_ \ / _ \ '__| '_ ` + "`" + ` _ \/ __|/ __/ _` + "`" + ` | '_ \
 | |_) |  __/ |  | | | | | \__ \ (_| (_| | | | |
 | .__/ \___|_|  |_| |_| |_|___/\___\__,_|_| |_|
 |_|
`
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, Cyan+banner+Reset)
	fmt.Fprintln(out, Gray+"  "+version+" - Smart contract permission exposure scanner"+Reset)
	fmt.Fprintln(out)
}

func clearLine() {
	fmt.Fprint(out, "\r\033[K")
}

// FormatWarning renders a yellow console line.
func FormatWarning(format string, a ...interface{}) string {
	return Yellow + fmt.Sprintf(format, a...) + Reset
}

func LogSuccess(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Fprintf(out, Green+"[SUCCESS] "+Reset+format+"\n", a...)
}

func LogWarn(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Fprintf(out, Yellow+"[WARN] "+format+Reset+"\n", a...)
}

func LogError(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Fprintf(out, Red+"[ERROR] "+Reset+format+"\n", a...)
}

func PrintStats(total, success, skipped, records int, duration time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out)
	fmt.Fprintln(out, Gray+strings.Repeat("─", 50)+Reset)
	fmt.Fprintf(out, "Scan completed in %s\n", duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Addresses: %d | Analyzed: %d | Skipped: %d | Guarded functions: %d\n", total, success, skipped, records)
	fmt.Fprintln(out, Gray+strings.Repeat("─", 50)+Reset)
}
