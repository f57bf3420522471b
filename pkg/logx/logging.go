package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ---- Config ----

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Alert   AlertConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// AlertConfig routes high-severity lines to a secondary writer (stderr
// by default) behind a rate limiter, so a wedged job cannot flood it.
type AlertConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// setupZerolog applies the process-wide zerolog knobs once, from
// whichever constructor runs first.
var setupZerolog = sync.OnceFunc(func() {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"
	// Keep callers short and clickable: file:line, no import path.
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}
})

// callerSkip makes zerolog attribute lines to the Logger's caller, not
// to the emit helper below: zerolog's default depth plus the two
// wrapper frames (the level method and emit).
const callerSkip = 4

// ---- Logger ----

// Logger is fritter's logging handle: a zerolog root plus attached
// key/value context, slog-style. Keys are strings; values are rendered
// by type (errors, durations and times keep their structure). The zero
// value is unusable and reports IsZero; use Nop for an explicit no-op.
type Logger struct {
	live bool
	root zerolog.Logger
	kv   []any
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{live: true, root: zerolog.Nop()}
}

// NewConsole creates a standalone console logger (no Service, no
// sinks). Useful for bootstrapping before the log service is up.
func NewConsole(level string) Logger {
	setupZerolog()
	root := zerolog.New(consoleWriter(os.Stdout)).
		Level(parseLevel(level, zerolog.InfoLevel)).
		With().Timestamp().CallerWithSkipFrameCount(callerSkip).Logger()
	return Logger{live: true, root: root}
}

func (l Logger) IsZero() bool { return !l.live }

// With returns a logger carrying additional key/value context.
func (l Logger) With(kv ...any) Logger {
	if len(kv) == 0 {
		return l
	}
	cp := l
	cp.kv = append(append([]any(nil), l.kv...), kv...)
	return cp
}

func (l Logger) Trace(msg string, kv ...any) { l.emit(zerolog.TraceLevel, msg, kv) }
func (l Logger) Debug(msg string, kv ...any) { l.emit(zerolog.DebugLevel, msg, kv) }
func (l Logger) Info(msg string, kv ...any)  { l.emit(zerolog.InfoLevel, msg, kv) }
func (l Logger) Warn(msg string, kv ...any)  { l.emit(zerolog.WarnLevel, msg, kv) }
func (l Logger) Error(msg string, kv ...any) { l.emit(zerolog.ErrorLevel, msg, kv) }

func (l Logger) emit(level zerolog.Level, msg string, kv []any) {
	if !l.live {
		return
	}
	e := l.root.WithLevel(level)
	if e == nil {
		return
	}
	applyKV(e, l.kv)
	applyKV(e, kv)
	e.Msg(msg)
}

// applyKV walks alternating key/value pairs. A trailing value without a
// key, or a non-string key, is a programming error and is surfaced in
// the output rather than dropped.
func applyKV(e *zerolog.Event, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("!badkey(%v)", kv[i])
		}
		switch v := kv[i+1].(type) {
		case string:
			e.Str(key, v)
		case error:
			e.AnErr(key, v)
		case bool:
			e.Bool(key, v)
		case int:
			e.Int(key, v)
		case int64:
			e.Int64(key, v)
		case uint64:
			e.Uint64(key, v)
		case float64:
			e.Float64(key, v)
		case time.Duration:
			e.Dur(key, v)
		case time.Time:
			e.Time(key, v)
		default:
			e.Interface(key, v)
		}
	}
	if len(kv)%2 == 1 {
		e.Interface("!dangling", kv[len(kv)-1])
	}
}

// ---- Service ----

// Service owns the sink stack. Loggers handed out by Service write
// through a switchable sink, so Apply reconfigures outputs and levels
// under every logger already in circulation without touching them.
type Service struct {
	sink *switchSink

	mu       sync.Mutex
	cfg      Config
	file     *os.File
	alertOut io.Writer
}

// New creates the logging service, applies cfg immediately, and returns
// the Service plus its root Logger. Alert lines go to alertOut
// (os.Stderr if nil).
func New(cfg Config, alertOut io.Writer) (*Service, Logger) {
	setupZerolog()
	if alertOut == nil {
		alertOut = os.Stderr
	}
	s := &Service{sink: &switchSink{}, alertOut: alertOut}
	s.Apply(cfg)

	// The root stays at Trace: level filtering lives in the sink so a
	// reload can change it.
	root := zerolog.New(s.sink).
		With().Timestamp().CallerWithSkipFrameCount(callerSkip).Logger()
	return s, Logger{live: true, root: root}
}

// Logger returns the root logger backed by this service's sinks.
func (s *Service) Logger() Logger {
	root := zerolog.New(s.sink).
		With().Timestamp().CallerWithSkipFrameCount(callerSkip).Logger()
	return Logger{live: true, root: root}
}

// Apply rebuilds the sink stack from cfg. Safe to call concurrently
// with logging: writers swap atomically.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./fritterd.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}
	if cfg.Alert.Enabled {
		rps := cfg.Alert.RatePerSec
		if rps < 1 {
			rps = 1
		}
		outs = append(outs, &alertWriter{
			out: s.alertOut,
			min: parseLevel(cfg.Alert.MinLevel, zerolog.WarnLevel),
			lim: rate.NewLimiter(rate.Limit(rps), rps),
		})
	}
	if len(outs) == 0 {
		outs = append(outs, consoleWriter(os.Stdout))
	}

	s.sink.swap(parseLevel(cfg.Level, zerolog.InfoLevel), zerolog.MultiLevelWriter(outs...))
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if f != nil {
		_ = f.Close()
	}
	return nil
}

// ---- Sinks ----

// switchSink is the stable write target under every Logger: an atomic
// pointer to the current (level, writer) pair.
type switchSink struct {
	state atomic.Pointer[sinkState]
}

type sinkState struct {
	min zerolog.Level
	out zerolog.LevelWriter
}

func (s *switchSink) swap(min zerolog.Level, out zerolog.LevelWriter) {
	s.state.Store(&sinkState{min: min, out: out})
}

func (s *switchSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.InfoLevel, p)
}

func (s *switchSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	st := s.state.Load()
	if st == nil || level < st.min {
		return len(p), nil
	}
	return st.out.WriteLevel(level, p)
}

// alertWriter forwards level-gated lines to the alert output, dropping
// excess volume at the limiter. Its fields are fixed at Apply time, so
// writes need no locking.
type alertWriter struct {
	out io.Writer
	min zerolog.Level
	lim *rate.Limiter
}

func (w *alertWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *alertWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min || !w.lim.Allow() {
		return len(p), nil
	}
	_, _ = w.out.Write(p)
	return len(p), nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return def
}
