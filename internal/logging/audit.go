package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType names a catalog event worth keeping a trail of.
type AuditEventType string

const (
	AuditLoadFresh   AuditEventType = "load_fresh"
	AuditLoadCached  AuditEventType = "load_cached"
	AuditLoadEmpty   AuditEventType = "load_empty"
	AuditSaveOK      AuditEventType = "save_ok"
	AuditSaveFailed  AuditEventType = "save_failed"
	AuditSaveBlocked AuditEventType = "save_blocked"
	AuditDuplicate   AuditEventType = "duplicate"
	AuditListGrow    AuditEventType = "list_grow"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	EventType AuditEventType
	Action    string // add | update
	Target    string // record id, list name, source url
	RowIndex  string
	Count     int
	Success   bool
	Duration  time.Duration
	Error     string
	Message   string
}

// AuditLogger writes audit events under the "audit" name. It shares the
// core of the category loggers and is silent when logging is disabled.
type AuditLogger struct {
	requestID string
}

// Audit returns the audit logger.
func Audit() *AuditLogger { return &AuditLogger{} }

// AuditWithRequest tags every event with a request correlation id.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

func (a *AuditLogger) core() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !settings.DebugMode || base == nil {
		return nil
	}
	return base.Named("audit")
}

// Log writes e.
func (a *AuditLogger) Log(e AuditEvent) {
	z := a.core()
	if z == nil {
		return
	}
	fields := []zap.Field{
		zap.String("event", string(e.EventType)),
		zap.Bool("success", e.Success),
	}
	if e.Action != "" {
		fields = append(fields, zap.String("action", e.Action))
	}
	if e.Target != "" {
		fields = append(fields, zap.String("target", e.Target))
	}
	if e.RowIndex != "" {
		fields = append(fields, zap.String("row_index", e.RowIndex))
	}
	if e.Count > 0 {
		fields = append(fields, zap.Int("count", e.Count))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("dur", e.Duration))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	if a.requestID != "" {
		fields = append(fields, zap.String("req", a.requestID))
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.EventType)
	}
	z.Info(msg, fields...)
}

// Load records the outcome of a dataset load.
func (a *AuditLogger) Load(event AuditEventType, source string, records int, dur time.Duration) {
	a.Log(AuditEvent{
		EventType: event,
		Target:    source,
		Count:     records,
		Success:   event != AuditLoadEmpty,
		Duration:  dur,
		Message:   "dataset loaded",
	})
}

// Save records a finished save attempt.
func (a *AuditLogger) Save(action, id, rowIndex string, dur time.Duration, err error) {
	e := AuditEvent{EventType: AuditSaveOK, Action: action, Target: id, RowIndex: rowIndex, Success: err == nil, Duration: dur}
	if err != nil {
		e.EventType = AuditSaveFailed
		e.Error = err.Error()
	}
	a.Log(e)
}

// Duplicate records a collision and how it was resolved.
func (a *AuditLogger) Duplicate(existingID, resolution string) {
	a.Log(AuditEvent{EventType: AuditDuplicate, Target: existingID, Success: true, Message: "duplicate " + resolution})
}

// ListGrow records a value added to a suggestion list.
func (a *AuditLogger) ListGrow(list, value string) {
	a.Log(AuditEvent{EventType: AuditListGrow, Target: list, Success: true, Message: value})
}
