package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobKey      = "job_key"
	KeyJobPriority = "job_priority"
	KeyAttempt     = "attempt"
	KeyMode        = "mode"
	KeyLimit       = "concurrency_limit"
	KeyQueueDepth  = "queue_depth"
	KeyActive      = "active"
	KeyDelay       = "delay"
	KeyExecutionID = "execution_id"
	KeyDurationMS  = "duration_ms"
	KeyScheduleID  = "schedule_id"
	KeySchedule    = "schedule_name"
	KeyPath        = "path"
	KeyStatus      = "status"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobKey(k string) slog.Attr        { return slog.String(KeyJobKey, k) }
func JobPriority(p int) slog.Attr      { return slog.Int(KeyJobPriority, p) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Mode(m string) slog.Attr          { return slog.String(KeyMode, m) }
func Limit(n int) slog.Attr            { return slog.Int(KeyLimit, n) }
func QueueDepth(n int) slog.Attr       { return slog.Int(KeyQueueDepth, n) }
func Active(n int) slog.Attr           { return slog.Int(KeyActive, n) }
func Delay(d string) slog.Attr         { return slog.String(KeyDelay, d) }
func ExecutionID(id string) slog.Attr  { return slog.String(KeyExecutionID, id) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func ScheduleID(id string) slog.Attr   { return slog.String(KeyScheduleID, id) }
func ScheduleName(n string) slog.Attr  { return slog.String(KeySchedule, n) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
