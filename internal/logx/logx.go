// Package logx provides structured logging for alexidx.
//
// The logger supports multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR),
// includes caller file/function/line information, and is safe for
// concurrent use with atomic level checking so a disabled level costs one
// atomic load.
//
// Log output format:
//
//	YYYY/MM/DD HH:MM:SS.ssssss [PID:GID] [LEVEL] function.file:line: message
package logx

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of a log message; higher values are more severe.
type Level int32

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var (
	currentLevel atomic.Int32
	processID    = os.Getpid()
	out          *log.Logger

	traceMu         sync.RWMutex
	traceSubsystems = make(map[string]bool)
)

func init() {
	out = log.New(os.Stdout, "", 0)
	currentLevel.Store(int32(INFO))
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(level string) error {
	switch strings.ToUpper(level) {
	case "TRACE":
		currentLevel.Store(int32(TRACE))
	case "DEBUG":
		currentLevel.Store(int32(DEBUG))
	case "INFO":
		currentLevel.Store(int32(INFO))
	case "WARN":
		currentLevel.Store(int32(WARN))
	case "ERROR":
		currentLevel.Store(int32(ERROR))
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// EnableTrace turns on TRACE-level output for the named subsystems
// ("shardfile", "query", "workerpool", ...), letting a developer light up
// one hot path without drowning in the rest.
func EnableTrace(subsystems ...string) {
	traceMu.Lock()
	defer traceMu.Unlock()
	for _, s := range subsystems {
		traceSubsystems[s] = true
	}
}

func isTraceEnabled(subsystem string) bool {
	traceMu.RLock()
	defer traceMu.RUnlock()
	return traceSubsystems[subsystem]
}

func formatMessage(level Level, skip int, format string, args ...interface{}) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "unknown"
	}
	if idx := strings.LastIndex(file, "/"); idx != -1 {
		file = file[idx+1:]
	}
	if idx := strings.LastIndex(file, ".go"); idx != -1 {
		file = file[:idx]
	}
	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		full := fn.Name()
		if idx := strings.LastIndex(full, "."); idx != -1 {
			funcName = full[idx+1:]
		}
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006/01/02 15:04:05.000000")
	return fmt.Sprintf("%s [%d:%d] [%s] %s.%s:%d: %s",
		ts, processID, goroutineID(), levelNames[level], funcName, file, line, msg)
}

func goroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	id := 0
	if len(fields) > 1 {
		fmt.Sscanf(fields[1], "%d", &id)
	}
	return id
}

func logMessage(level Level, skip int, format string, args ...interface{}) {
	if level < Level(currentLevel.Load()) {
		return
	}
	out.Println(formatMessage(level, skip, format, args...))
}

// TraceIf logs a TRACE message only when both the TRACE level and the named
// subsystem are enabled.
func TraceIf(subsystem, format string, args ...interface{}) {
	if Level(currentLevel.Load()) > TRACE || !isTraceEnabled(subsystem) {
		return
	}
	logMessage(TRACE, 3, "[%s] %s", subsystem, fmt.Sprintf(format, args...))
}

func Trace(format string, args ...interface{}) { logMessage(TRACE, 3, format, args...) }
func Debug(format string, args ...interface{}) { logMessage(DEBUG, 3, format, args...) }
func Info(format string, args ...interface{})  { logMessage(INFO, 3, format, args...) }
func Warn(format string, args ...interface{})  { logMessage(WARN, 3, format, args...) }
func Error(format string, args ...interface{}) { logMessage(ERROR, 3, format, args...) }

// Fatal logs at ERROR and terminates the process.
func Fatal(format string, args ...interface{}) {
	out.Println(formatMessage(ERROR, 2, format, args...))
	os.Exit(1)
}

// Configure applies ALEX_LOG_LEVEL and ALEX_TRACE_SUBSYSTEMS from the
// environment. Called once at process startup.
func Configure() {
	if level := os.Getenv("ALEX_LOG_LEVEL"); level != "" {
		if err := SetLevel(level); err != nil {
			Warn("ignoring invalid ALEX_LOG_LEVEL=%q: %v", level, err)
		}
	}
	if trace := os.Getenv("ALEX_TRACE_SUBSYSTEMS"); trace != "" {
		parts := strings.Split(trace, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		EnableTrace(parts...)
	}
}
