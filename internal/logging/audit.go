package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEventType names a run milestone written to the audit log.
type AuditEventType string

const (
	AuditRunStart      AuditEventType = "run_start"
	AuditRunEnd        AuditEventType = "run_end"
	AuditLogin         AuditEventType = "login"
	AuditContactsFound AuditEventType = "contacts_found"
	AuditContactStart  AuditEventType = "contact_start"
	AuditContactDone   AuditEventType = "contact_done"
	AuditContactFailed AuditEventType = "contact_failed"
	AuditStall         AuditEventType = "stall_diagnosis"
)

// AuditEvent is one JSON line in <dir>/<date>_audit.log.
type AuditEvent struct {
	Event      AuditEventType
	RunID      string
	Contact    string
	Success    bool
	DurationMs int64
	Count      int
	Detail     string
	Err        error
}

var (
	auditMu     sync.Mutex
	auditFile   *os.File
	auditLogger *zap.Logger
)

// InitAudit opens the audit log. It is a no-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger != nil {
		return nil
	}

	optsMu.RLock()
	dir := opts.Dir
	optsMu.RUnlock()

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("%s_audit.log", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "event"
	cfg.LevelKey = ""
	cfg.EncodeTime = zapcore.EpochMillisTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(file), zapcore.DebugLevel)

	auditFile = file
	auditLogger = zap.New(core)
	return nil
}

func closeAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger != nil {
		_ = auditLogger.Sync()
		auditLogger = nil
	}
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit writes an event. Nothing is written unless InitAudit succeeded.
func Audit(e AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("run", e.RunID),
		zap.Bool("success", e.Success),
	}
	if e.Contact != "" {
		fields = append(fields, zap.String("contact", e.Contact))
	}
	if e.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", e.DurationMs))
	}
	if e.Count > 0 {
		fields = append(fields, zap.Int("count", e.Count))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	if e.Err != nil {
		fields = append(fields, zap.String("error", e.Err.Error()))
	}
	auditLogger.Info(string(e.Event), fields...)
}
