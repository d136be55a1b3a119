package internal

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

const redacted = "[REDACTED]"

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

// redactAfter replaces the value following every case-insensitive occurrence
// of marker, up to the first byte for which stop returns true.
func redactAfter(input, marker string, stop func(byte) bool) string {
	lowerMarker := strings.ToLower(marker)
	var b strings.Builder
	rest := input
	for {
		idx := strings.Index(strings.ToLower(rest), lowerMarker)
		if idx < 0 {
			b.WriteString(rest)
			return b.String()
		}
		start := idx + len(marker)
		end := start
		for end < len(rest) && !stop(rest[end]) {
			end++
		}
		b.WriteString(rest[:start])
		if end > start {
			b.WriteString(redacted)
		}
		rest = rest[end:]
	}
}

// CookieRedactor redacts session cookie and authorization values
type CookieRedactor struct{}

func (r *CookieRedactor) Redact(input string) string {
	patterns := []string{
		"access_token=",
		"refresh_token=",
		"session=",
		"Bearer ",
	}

	stop := func(c byte) bool {
		return c == ' ' || c == ';' || c == '\n' || c == '\r' || c == '"'
	}

	result := input
	for _, pattern := range patterns {
		result = redactAfter(result, pattern, stop)
	}
	return result
}

// URLRedactor redacts sensitive URL parameters
type URLRedactor struct{}

func (r *URLRedactor) Redact(input string) string {
	sensitiveParams := []string{
		"?token=",
		"&token=",
		"key=",
		"secret=",
		"password=",
	}

	stop := func(c byte) bool {
		return c == '&' || c == ' ' || c == '\n' || c == '"'
	}

	result := input
	for _, param := range sensitiveParams {
		result = redactAfter(result, param, stop)
	}
	return result
}

// ShareTokenRedactor shortens share tokens found in /share/<token> paths to
// their first four characters.
type ShareTokenRedactor struct{}

func (r *ShareTokenRedactor) Redact(input string) string {
	const marker = "/share/"
	var b strings.Builder
	rest := input
	for {
		idx := strings.Index(rest, marker)
		if idx < 0 {
			b.WriteString(rest)
			return b.String()
		}
		start := idx + len(marker)
		end := start
		for end < len(rest) && !strings.ContainsRune("/?# \n\"'", rune(rest[end])) {
			end++
		}
		b.WriteString(rest[:start])
		if token := rest[start:end]; len(token) > 4 {
			b.WriteString(token[:4])
			b.WriteString("***")
		} else {
			b.WriteString(token)
		}
		rest = rest[end:]
	}
}

// SecureLogger writes leveled log lines through zap after passing every
// message through a chain of redactors.
type SecureLogger struct {
	mu        sync.RWMutex
	out       zapcore.WriteSyncer
	zl        *zap.Logger
	level     LogLevel
	debug     bool
	quiet     bool
	redactors []Redactor
}

// NewSecureLogger creates a new secure logger
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	sl := &SecureLogger{
		out:   zapcore.Lock(zapcore.AddSync(output)),
		level: level,
		debug: debug,
		quiet: quiet,
		redactors: []Redactor{
			&CookieRedactor{},
			&URLRedactor{},
			&ShareTokenRedactor{},
		},
	}
	if quiet {
		sl.level = LogLevelError
	}
	sl.build()
	return sl
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := LogLevelInfo
	if debug {
		level = LogLevelDebug
	}
	if quiet {
		level = LogLevelError
	}

	return NewSecureLogger(os.Stderr, level, debug, quiet)
}

// build rebuilds the zap logger; callers hold mu or own sl exclusively.
func (sl *SecureLogger) build() {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	opts := []zap.Option{}
	if sl.debug {
		encCfg.CallerKey = "caller"
		encCfg.EncodeCaller = zapcore.ShortCallerEncoder
		// logf and the exported method sit between zap and the caller
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sl.out, zapcore.DebugLevel)
	sl.zl = zap.New(core, opts...)
}

func (sl *SecureLogger) redactSensitiveData(input string) string {
	result := input
	for _, redactor := range sl.redactors {
		result = redactor.Redact(result)
	}
	return result
}

func (sl *SecureLogger) shouldLog(level LogLevel) bool {
	if sl.quiet && level > LogLevelError {
		return false
	}
	return level <= sl.level
}

func (sl *SecureLogger) logf(level LogLevel, format string, args ...interface{}) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if !sl.shouldLog(level) {
		return
	}

	message := sl.redactSensitiveData(fmt.Sprintf(format, args...))
	if ce := sl.zl.Check(level.zapLevel(), message); ce != nil {
		ce.Write()
	}
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	sl.logf(LogLevelError, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	sl.logf(LogLevelWarn, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	sl.logf(LogLevelInfo, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	sl.logf(LogLevelDebug, format, args...)
}

// LogHTTPRequest logs an HTTP request with sensitive data redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if !sl.enabled(LogLevelDebug) {
		return
	}
	sl.Debug("HTTP Request: %s %s Headers: %v", req.Method, req.URL.String(), sl.sanitizeHeaders(req.Header))
}

// LogHTTPResponse logs an HTTP response with sensitive data redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response) {
	if !sl.enabled(LogLevelDebug) {
		return
	}
	sl.Debug("HTTP Response: %s Headers: %v", resp.Status, sl.sanitizeHeaders(resp.Header))
}

func (sl *SecureLogger) enabled(level LogLevel) bool {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.shouldLog(level)
}

func (sl *SecureLogger) sanitizeHeaders(h http.Header) map[string]string {
	sanitized := make(map[string]string, len(h))
	for name, values := range h {
		if sl.isSensitiveHeader(name) {
			sanitized[name] = redacted
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

func (sl *SecureLogger) isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"cookie",
		"x-auth-token",
		"x-api-key",
		"bearer",
		"token",
	}

	lowerName := strings.ToLower(name)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel sets the logging level
func (sl *SecureLogger) SetLevel(level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.level = level
}

// SetDebug enables or disables debug mode
func (sl *SecureLogger) SetDebug(debug bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.debug = debug
	if debug && sl.level < LogLevelDebug {
		sl.level = LogLevelDebug
	}
	sl.build()
}

// SetQuiet enables or disables quiet mode
func (sl *SecureLogger) SetQuiet(quiet bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.quiet = quiet
	if quiet {
		sl.level = LogLevelError
	}
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.redactors = append(sl.redactors, redactor)
}

// Sync flushes buffered log output
func (sl *SecureLogger) Sync() error {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.zl.Sync()
}
