package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu          sync.RWMutex
	debugMode   bool
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
)

func init() {
	SetOutput(os.Stderr)
}

// SetOutput redirects every level to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	debugLogger = log.New(w, "[DEBUG] ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger = log.New(w, "[INFO] ", log.Ldate|log.Ltime)
	warnLogger = log.New(w, "[WARN] ", log.Ldate|log.Ltime)
	errorLogger = log.New(w, "[ERROR] ", log.Ldate|log.Ltime|log.Lshortfile)
}

func SetDebugMode(enabled bool) {
	mu.Lock()
	debugMode = enabled
	mu.Unlock()
	if enabled {
		Debug("Debug mode enabled")
	}
}

func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

func Debug(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if debugMode {
		_ = debugLogger.Output(2, fmt.Sprintf(format, args...))
	}
}

func Info(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	infoLogger.Printf(format, args...)
}

// Warn is for degraded-but-continuing conditions, such as a failed adapter or
// a skipped note during reindex.
func Warn(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	warnLogger.Printf(format, args...)
}

func Error(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	_ = errorLogger.Output(2, fmt.Sprintf(format, args...))
}

// LogRequest logs an HTTP request in debug mode
func LogRequest(method, path, remoteAddr string) {
	Debug("HTTP %s %s from %s", method, path, remoteAddr)
}
