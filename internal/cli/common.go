// Package cli provides small, shared command-line conveniences: build
// version reporting and a leveled Logger, used by the allocator package for
// debug/zone-growth diagnostics and by cmd/btmalloc-inspect for --version.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

const (
	Version   = "1.0.0"
	BuildDate = "2026-08-01"
	CommitSHA = "unknown" // set during build
)

// VersionInfo is the structured shape PrintVersion reports.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	CommitSHA string `json:"commit_sha"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
}

func GetVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:   Version,
		BuildDate: BuildDate,
		CommitSHA: CommitSHA,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// PrintVersion prints version information in a consistent format, as either
// a human-readable block or JSON.
func PrintVersion(toolName string, jsonOutput bool) {
	info := GetVersionInfo()

	if !jsonOutput {
		printVersionText(toolName, info)
		return
	}

	data, err := json.MarshalIndent(map[string]interface{}{
		"tool":         toolName,
		"version_info": info,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal version info to JSON: %v\n", err)
		printVersionText(toolName, info)
		return
	}

	fmt.Println(string(data))
}

func printVersionText(toolName string, info *VersionInfo) {
	lines := []string{
		fmt.Sprintf("%s v%s", toolName, info.Version),
		fmt.Sprintf("Build Date: %s", info.BuildDate),
		fmt.Sprintf("Go Version: %s", info.GoVersion),
		fmt.Sprintf("Platform: %s/%s", info.Platform, info.Arch),
	}

	for _, line := range lines {
		fmt.Println(line)
	}
}

// ExitWithError prints an error message and exits with code 1.
func ExitWithError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// logLevel is a Logger message severity, used only to pick a tag and gate
// visibility; the four exported methods are thin wrappers around log.
type logLevel int

const (
	levelInfo logLevel = iota
	levelDebug
	levelWarn
	levelError
)

func (lv logLevel) tag() string {
	switch lv {
	case levelInfo:
		return "INFO"
	case levelDebug:
		return "DEBUG"
	case levelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger is a leveled logger gated by Verbose/DebugMode, used by
// internal/allocator for zone-growth diagnostics. Warn and
// Error are always printed; Info requires Verbose and Debug requires
// DebugMode.
type Logger struct {
	Verbose   bool
	DebugMode bool
}

func NewLogger(verbose, debug bool) *Logger {
	return &Logger{Verbose: verbose, DebugMode: debug}
}

func (l *Logger) enabled(lv logLevel) bool {
	switch lv {
	case levelInfo:
		return l.Verbose
	case levelDebug:
		return l.DebugMode
	default:
		return true
	}
}

func (l *Logger) log(lv logLevel, format string, args ...interface{}) {
	if !l.enabled(lv) {
		return
	}

	fmt.Printf("[%s] %s: %s\n", lv.tag(), time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(levelInfo, format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(levelDebug, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(levelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(levelError, format, args...)
}
