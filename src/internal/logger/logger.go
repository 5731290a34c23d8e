package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	fileLogger  *log.Logger
	logFile     *os.File
	initialized bool
	verbose     bool
	console     io.Writer = os.Stdout
	consoleMu   sync.Mutex
)

// InitLogger opens logs/scan_<timestamp>.log under dir and mirrors every message into it.
func InitLogger(dir string) (string, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(dir, fmt.Sprintf("scan_%s.log", timestamp))

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	consoleMu.Lock()
	logFile = f
	fileLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	initialized = true
	consoleMu.Unlock()
	return logPath, nil
}

func Close() {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initialized = false
}

// SetOutput redirects console output, tests use it to capture messages.
func SetOutput(w io.Writer) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	console = w
}

// SetVerbose makes Debug messages visible on the console too.
func SetVerbose(v bool) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	verbose = v
}

func write(level string, toConsole bool, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}

	consoleMu.Lock()
	defer consoleMu.Unlock()
	if initialized {
		fileLogger.Output(3, level+" "+msg)
	}
	if toConsole {
		fmt.Fprint(console, level+" "+msg)
	}
}

func Info(format string, v ...interface{}) {
	write("[INFO]", true, format, v...)
}

// InfoFileOnly records a message in the log file without touching the console.
func InfoFileOnly(format string, v ...interface{}) {
	write("[INFO]", false, format, v...)
}

func Debug(format string, v ...interface{}) {
	consoleMu.Lock()
	show := verbose
	consoleMu.Unlock()
	write("[DEBUG]", show, format, v...)
}

func Warn(format string, v ...interface{}) {
	write("[WARN]", true, format, v...)
}

func Error(format string, v ...interface{}) {
	write("[ERROR]", true, format, v...)
}

func GetLogWriter() io.Writer {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if logFile == nil {
		return io.Discard
	}
	return logFile
}
