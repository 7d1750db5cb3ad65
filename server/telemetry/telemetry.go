// A simple telemetry package.
// Log lines go to a zap logger, counters are kept in memory
// and mirrored to a prometheus counter vector for /metrics.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type TelemetryData struct {
	logger *zap.SugaredLogger
	level  zap.AtomicLevel

	counterLock sync.Mutex
	counters    map[string]int

	trace bool
}

var events = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "inboxlace_events_total",
		Help: "Counted inbox events by name",
	},
	[]string{"event"},
)

var data = TelemetryData{
	counters: make(map[string]int),
	trace:    true,
}

// init is called at program startup time to initialize the logger
func init() {
	data.level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	data.logger = newLogger(data.level).Sugar()
}

func newLogger(level zap.AtomicLevel) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "time"
	cfg.OutputPaths = []string{"stdout"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SetLevel changes the minimum logged level: debug, info, warn or error.
// Trace output is only written at debug level.
func SetLevel(name string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return fmt.Errorf("unknown log level %q: %w", name, err)
	}
	data.level.SetLevel(lvl)
	data.trace = lvl == zapcore.DebugLevel
	return nil
}

func Log(format string, args ...any) {
	data.logger.Infof(format, args...)
}

func Trace(format string, args ...any) {
	if data.trace {
		data.logger.Debugf(format, args...)
	}
}

// Debug is used for discard reasons and other expected, quiet outcomes.
func Debug(format string, args ...any) {
	data.logger.Debugf(format, args...)
}

func Error(err error, format string, args ...any) {
	data.logger.Errorw(fmt.Sprintf(format, args...), "error", err)
	Increment("errors", 1)
}

// Request logs essential information about an HTTP request
func Request(r *http.Request, format string, args ...any) {
	data.logger.Infow(fmt.Sprintf(format, args...), "method", r.Method, "url", r.URL.String())
}

// Increment increases a count, thread-safe
func Increment(name string, n int) {
	data.counterLock.Lock()
	data.counters[name] += n
	data.counterLock.Unlock()
	events.WithLabelValues(name).Add(float64(n))
}

func GetCounter(name string) int {
	data.counterLock.Lock()
	defer data.counterLock.Unlock()
	return data.counters[name]
}

func LogCounters() {
	s := make([]string, 0)
	data.counterLock.Lock()
	for k, v := range data.counters {
		s = append(s, fmt.Sprintf("%s=%d", k, v))
	}
	data.counterLock.Unlock()
	if len(s) == 0 {
		s = append(s, "no counters were recorded")
	}
	sort.Strings(s)
	Log(strings.Join(s, ", "))
}

// Sync flushes buffered log output
func Sync() {
	_ = data.logger.Sync()
}

// Writer adapts the logger for libraries that log through Printf, like gorm.
type Writer struct{}

func (Writer) Printf(format string, args ...any) {
	data.logger.Warnf(strings.TrimSpace(format), args...)
}
