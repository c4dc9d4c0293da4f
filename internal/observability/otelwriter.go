package observability

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

var zerologSeverity = map[string]log.Severity{
	"trace": log.SeverityTrace,
	"debug": log.SeverityDebug,
	"info":  log.SeverityInfo,
	"warn":  log.SeverityWarn,
	"error": log.SeverityError,
	"fatal": log.SeverityFatal,
	"panic": log.SeverityFatal,
}

// OTelWriter bridges zerolog JSON lines to OTel log records emitted through
// the global LoggerProvider. InitOTel installs trace and metric providers
// only, so records reach a backend only when a LoggerProvider is set.
type OTelWriter struct {
	logger log.Logger
}

func NewOTelWriter(name string) *OTelWriter {
	return &OTelWriter{logger: global.GetLoggerProvider().Logger(name)}
}

// Write implements io.Writer for zerolog's output chain.
func (w *OTelWriter) Write(p []byte) (int, error) {
	var rec log.Record
	rec.SetTimestamp(time.Now())

	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		rec.SetBody(log.StringValue(string(p)))
		rec.SetSeverity(log.SeverityInfo)
		w.logger.Emit(context.Background(), rec)
		return len(p), nil
	}

	if ts, ok := entry["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.SetTimestamp(t)
		}
		delete(entry, "time")
	}

	sev := log.SeverityInfo
	if lvl, ok := entry["level"].(string); ok {
		if s, known := zerologSeverity[lvl]; known {
			sev = s
		}
		delete(entry, "level")
	}
	rec.SetSeverity(sev)

	if msg, ok := entry["message"].(string); ok {
		rec.SetBody(log.StringValue(msg))
		delete(entry, "message")
	}

	attrs := make([]log.KeyValue, 0, len(entry))
	for k, v := range entry {
		attrs = append(attrs, log.KeyValue{Key: k, Value: attrValue(v)})
	}
	rec.AddAttributes(attrs...)

	w.logger.Emit(context.Background(), rec)
	return len(p), nil
}

func attrValue(v any) log.Value {
	switch val := v.(type) {
	case string:
		return log.StringValue(val)
	case bool:
		return log.BoolValue(val)
	case float64:
		if val == float64(int64(val)) {
			return log.Int64Value(int64(val))
		}
		return log.Float64Value(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return log.StringValue("")
		}
		return log.StringValue(string(b))
	}
}
