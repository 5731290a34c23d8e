package solc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/singleflight"

	"github.com/VectorBits/permscan/src/internal/logger"
)

// SolcManager locates solc binaries by version.
type SolcManager struct {
	mu           sync.RWMutex
	versionCache map[string]string // version -> solc path
	installs     singleflight.Group

	// Binary, when set, is used for every version.
	Binary string
}

var (
	defaultManager *SolcManager
	once           sync.Once
)

func GetManager() *SolcManager {
	once.Do(func() {
		defaultManager = &SolcManager{
			versionCache: make(map[string]string),
			Binary:       os.Getenv("SOLC_BINARY"),
		}
	})
	return defaultManager
}

var (
	pragmaRe     = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
	versionRe    = regexp.MustCompile(`(\d+\.\d+\.\d+)`)
	constraintRe = regexp.MustCompile(`(<=|<)?\s*(\d+\.\d+\.\d+)`)
)

// ExtractPragmaVersion returns the highest version the pragmas of source allow.
// Exclusive upper bounds such as <0.9.0 are ignored.
func ExtractPragmaVersion(source string) string {
	var versions []string
	for _, match := range pragmaRe.FindAllStringSubmatch(source, -1) {
		for _, c := range constraintRe.FindAllStringSubmatch(match[1], -1) {
			if c[1] == "<" {
				continue
			}
			versions = append(versions, c[2])
		}
	}
	return highest(versions)
}

// ParseCompilerVersion turns an explorer compiler string such as
// "v0.8.20+commit.a1b79de6" into "0.8.20".
func ParseCompilerVersion(s string) string {
	return versionRe.FindString(s)
}

func highest(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
	return versions[0]
}

func compareVersions(v1, v2 string) int {
	return semver.Compare("v"+normalizeVersion(v1), "v"+normalizeVersion(v2))
}

// GetSolcPath returns the solc binary for version, installing it with solc-select
// when needed. Concurrent requests for the same version share one install.
func (m *SolcManager) GetSolcPath(ctx context.Context, version string) (string, error) {
	if m.Binary != "" {
		return m.Binary, nil
	}
	if version == "" {
		return "", fmt.Errorf("version is empty")
	}
	version = normalizeVersion(version)

	m.mu.RLock()
	path, ok := m.versionCache[version]
	m.mu.RUnlock()
	if ok && fileExists(path) {
		return path, nil
	}

	v, err, _ := m.installs.Do(version, func() (interface{}, error) {
		if path := m.findInstalled(version); path != "" {
			return path, nil
		}
		return m.installVersion(ctx, version)
	})
	if err != nil {
		return "", fmt.Errorf("failed to get solc %s: %w", version, err)
	}
	path = v.(string)
	m.cachePath(version, path)
	return path, nil
}

func normalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	version = strings.TrimPrefix(version, "v")
	for _, prefix := range []string{"^", ">=", "<=", ">", "<", "~", "="} {
		version = strings.TrimPrefix(version, prefix)
	}
	return strings.TrimSpace(version)
}

func (m *SolcManager) cachePath(version, path string) {
	m.mu.Lock()
	m.versionCache[version] = path
	m.mu.Unlock()
}

// candidatePaths lists where solc-select and py-solc-x put a version.
func candidatePaths(version string) []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	solcSelectDir := filepath.Join(homeDir, ".solc-select", "artifacts", fmt.Sprintf("solc-%s", version))
	solcxDir := filepath.Join(homeDir, ".solcx")

	if runtime.GOOS == "windows" {
		return []string{
			filepath.Join(solcSelectDir, fmt.Sprintf("solc-%s.exe", version)),
			filepath.Join(solcSelectDir, "solc.exe"),
		}
	}
	paths := []string{
		filepath.Join(solcSelectDir, fmt.Sprintf("solc-%s", version)),
		filepath.Join(homeDir, ".solc-select", "artifacts", version, fmt.Sprintf("solc-%s", version)),
		filepath.Join(solcxDir, fmt.Sprintf("solc-v%s", version)),
		filepath.Join(solcxDir, fmt.Sprintf("solc-%s", version)),
	}
	if runtime.GOOS == "darwin" {
		paths = append(paths, filepath.Join(solcxDir, fmt.Sprintf("solc-v%s", version), "bin", "solc"))
	}
	return paths
}

func (m *SolcManager) findInstalled(version string) string {
	for _, path := range candidatePaths(version) {
		if fileExists(path) && isExecutable(path) {
			return path
		}
	}
	return ""
}

func (m *SolcManager) installVersion(ctx context.Context, version string) (string, error) {
	if _, err := exec.LookPath("solc-select"); err != nil {
		if path, err := exec.LookPath("solc"); err == nil {
			logger.Warn("solc-select not found, falling back to %s for %s", path, version)
			return path, nil
		}
		return "", fmt.Errorf("please install manually: solc-select install %s", version)
	}

	logger.Info("Installing solc %s", version)
	cmd := exec.CommandContext(ctx, "solc-select", "install", version)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("solc-select install failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	if path := m.findInstalled(version); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("solc %s installed but binary not found", version)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return !info.IsDir()
	}
	return info.Mode()&0111 != 0
}
