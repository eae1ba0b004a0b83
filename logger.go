package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	ledgerLogFile     = "ledger.log"
	queryLogFile      = "query.log"
	processingLogFile = "processing.log"
)

// Component attribute values that route info records to their own file.
const (
	componentKey   = "component"
	componentQuery = "query"
	componentBlock = "block"
	componentHTTP  = "http"
)

// Thresholds above which a warning is logged.
const (
	slowQueryThreshold   = 200 * time.Millisecond
	slowRequestThreshold = 500 * time.Millisecond
	slowBlockThreshold   = 1000 * time.Millisecond
)

// getDefaultTestName generates a default test name based on current time
func getDefaultTestName() string {
	now := time.Now()
	return fmt.Sprintf("perf_test_%s_%02d%02d", now.Format("20060102"), now.Hour(), now.Minute())
}

// LogFiles appends lines to the log files of one run.
type LogFiles struct {
	mu       sync.Mutex
	dir      string
	testName string
	stdout   io.Writer
}

// NewLogFiles creates dir if needed. An empty testName gets a time-based default.
func NewLogFiles(dir, testName string, stdout io.Writer) (*LogFiles, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if testName == "" {
		testName = getDefaultTestName()
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return &LogFiles{dir: dir, testName: testName, stdout: stdout}, nil
}

// TestName returns the name tagged on metric lines.
func (l *LogFiles) TestName() string {
	return l.testName
}

// Path returns the full path of a log file.
func (l *LogFiles) Path(name string) string {
	return filepath.Join(l.dir, name)
}

// appendLine appends a raw line to a log file
func (l *LogFiles) appendLine(name, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}

func (l *LogFiles) print(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.stdout, line)
}

// LedgerHandler is a slog handler that prints to stdout and routes records
// into the run's log files:
//
//   - errors and warnings go to ledger.log
//   - info records with component=query go to query.log
//   - info records with component=block go to processing.log
//   - everything else goes to ledger.log
//
// A "block batch processed" record additionally emits a BLOCK-BATCH metric line.
type LedgerHandler struct {
	files  *LogFiles
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewLedgerHandler creates a handler writing to files at or above level.
func NewLedgerHandler(files *LogFiles, level slog.Leveler) *LedgerHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LedgerHandler{files: files, level: level}
}

// NewLogger returns a logger backed by a LedgerHandler.
func NewLogger(files *LogFiles, level slog.Leveler) *slog.Logger {
	return slog.New(NewLedgerHandler(files, level))
}

// Enabled reports whether the handler handles records at the given level
func (h *LedgerHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats the record and routes it.
func (h *LedgerHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		attrs = append(attrs, a)
		return true
	})

	var msg strings.Builder
	msg.WriteString(r.Time.Format(time.RFC3339))
	msg.WriteString(" [")
	msg.WriteString(r.Level.String())
	msg.WriteString("] ")
	msg.WriteString(r.Message)
	for _, a := range attrs {
		msg.WriteString(" ")
		msg.WriteString(a.Key)
		msg.WriteString("=")
		msg.WriteString(a.Value.String())
	}
	message := msg.String()

	h.trackBlockBatch(r.Message, attrs, r.Time)

	h.files.print(message)

	switch {
	case r.Level >= slog.LevelError:
		h.files.appendLine(ledgerLogFile, "[ERROR] "+message)
	case r.Level >= slog.LevelWarn:
		h.files.appendLine(ledgerLogFile, "[WARNING] "+message)
	case r.Level >= slog.LevelInfo:
		switch attrString(attrs, componentKey) {
		case componentQuery:
			h.files.appendLine(queryLogFile, message)
		case componentBlock:
			h.files.appendLine(processingLogFile, message)
		default:
			h.files.appendLine(ledgerLogFile, "[INFO] "+message)
		}
	default:
		h.files.appendLine(ledgerLogFile, "[DEBUG] "+message)
	}
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *LedgerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

// WithGroup qualifies subsequent attribute keys with name.
func (h *LedgerHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func attrString(attrs []slog.Attr, key string) string {
	for i := len(attrs) - 1; i >= 0; i-- {
		if attrs[i].Key == key {
			return attrs[i].Value.String()
		}
	}
	return ""
}

func attrInt64(attrs []slog.Attr, key string) int64 {
	for i := len(attrs) - 1; i >= 0; i-- {
		a := attrs[i]
		if a.Key != key {
			continue
		}
		v := a.Value.Resolve()
		switch v.Kind() {
		case slog.KindInt64:
			return v.Int64()
		case slog.KindUint64:
			return int64(v.Uint64())
		case slog.KindFloat64:
			return int64(v.Float64())
		case slog.KindDuration:
			return v.Duration().Milliseconds()
		case slog.KindString:
			if d, err := time.ParseDuration(v.String()); err == nil {
				return d.Milliseconds()
			}
			var n int64
			if _, err := fmt.Sscanf(v.String(), "%d", &n); err == nil {
				return n
			}
		}
		return 0
	}
	return 0
}

// trackBlockBatch emits a derived metric line for "block batch processed" logs:
// [timestamp] <testname> BLOCK-BATCH <first> <last> <mints> <transfers> <lists> <unlists> <purchases> <funds> <failures> <totalOps> <processingTime>
func (h *LedgerHandler) trackBlockBatch(message string, attrs []slog.Attr, logTime time.Time) {
	if !strings.Contains(strings.ToLower(message), "block batch processed") {
		return
	}

	firstBlock := attrInt64(attrs, "firstBlock")
	lastBlock := attrInt64(attrs, "lastBlock")
	mints := attrInt64(attrs, "mints")
	transfers := attrInt64(attrs, "transfers")
	lists := attrInt64(attrs, "lists")
	unlists := attrInt64(attrs, "unlists")
	purchases := attrInt64(attrs, "purchases")
	funds := attrInt64(attrs, "funds")
	failures := attrInt64(attrs, "failures")
	processingTime := attrInt64(attrs, "processingTime")
	totalOps := mints + transfers + lists + unlists + purchases + funds

	line := fmt.Sprintf("[%s] %s BLOCK-BATCH %d %d %d %d %d %d %d %d %d %d %d",
		logTime.Format(time.RFC3339),
		h.files.TestName(),
		firstBlock,
		lastBlock,
		mints,
		transfers,
		lists,
		unlists,
		purchases,
		funds,
		failures,
		totalOps,
		processingTime,
	)

	// Raw, without another timestamp prefix.
	h.files.print(line)
	h.files.appendLine(processingLogFile, line)
}

// logSlow warns when an operation exceeded its threshold.
func logSlow(logger *slog.Logger, kind, what string, duration, threshold time.Duration, args ...any) {
	if duration <= threshold {
		return
	}
	args = append([]any{
		"what", what,
		"duration_ms", duration.Milliseconds(),
		"threshold_ms", threshold.Milliseconds(),
	}, args...)
	logger.Warn("SLOW "+kind, args...)
}
