package observability

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	otelglobal "go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const (
	logMirrorScope = "github.com/potatocaustic/real-karma-league/internal/platform/logging"
	maxValueDepth  = 3
)

var severities = map[zapcore.Level]otellog.Severity{
	zapcore.DebugLevel:  otellog.SeverityDebug,
	zapcore.InfoLevel:   otellog.SeverityInfo,
	zapcore.WarnLevel:   otellog.SeverityWarn,
	zapcore.ErrorLevel:  otellog.SeverityError,
	zapcore.DPanicLevel: otellog.SeverityFatal,
	zapcore.PanicLevel:  otellog.SeverityFatal,
	zapcore.FatalLevel:  otellog.SeverityFatal,
}

// logMirror copies log records into the global OTel logger provider so they
// land in Uptrace next to the traces that produced them.
type logMirror struct {
	logger otellog.Logger
	now    func() time.Time
}

func newLogMirror(serviceVersion string) *logMirror {
	return &logMirror{
		logger: otelglobal.Logger(logMirrorScope, otellog.WithInstrumentationVersion(serviceVersion)),
		now:    time.Now,
	}
}

func (m *logMirror) emit(ctx context.Context, level logging.Level, msg string, args ...any) {
	if skipMirror(msg, args) {
		return
	}
	severity, ok := severities[level]
	if !ok {
		severity = otellog.SeverityInfo
	}
	if !m.logger.Enabled(ctx, otellog.EnabledParameters{Severity: severity, EventName: msg}) {
		return
	}

	now := m.now().UTC()
	var record otellog.Record
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetSeverity(severity)
	record.SetSeverityText(strings.ToUpper(level.String()))
	record.SetEventName(msg)
	record.SetBody(otellog.StringValue(msg))
	record.AddAttributes(mirrorAttributes(args)...)
	m.logger.Emit(ctx, record)
}

// skipMirror keeps probe traffic and per-minute sampler summaries out of
// Uptrace. Both still reach stdout.
func skipMirror(msg string, args []any) bool {
	switch msg {
	case "http request":
		path, _ := lookupArg(args, "path").(string)
		return !shouldMirrorPath(path)
	case "scheduler job completed":
		job, _ := lookupArg(args, "job").(string)
		return job == jobscheduler.JobSample
	default:
		return false
	}
}

func shouldMirrorPath(path string) bool {
	switch strings.TrimSpace(path) {
	case "/healthz", "/health", "/livez", "/readyz":
		return false
	default:
		return true
	}
}

func lookupArg(args []any, key string) any {
	for i := 0; i < len(args); i++ {
		if _, ok := args[i].(zap.Field); ok {
			continue
		}
		if i+1 < len(args) && args[i] == key {
			return args[i+1]
		}
		i++
	}
	return nil
}

// mirrorAttributes converts key/value args the same way the zap side does:
// zap.Field values pass through, unnamed keys become arg_N and a dangling key
// is kept with an empty value.
func mirrorAttributes(args []any) []otellog.KeyValue {
	attrs := make([]otellog.KeyValue, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		if field, ok := args[i].(zap.Field); ok {
			attrs = append(attrs, fieldAttribute(field))
			continue
		}

		key, _ := args[i].(string)
		if strings.TrimSpace(key) == "" {
			key = fmt.Sprintf("arg_%d", len(attrs))
		}
		if i+1 == len(args) {
			attrs = append(attrs, otellog.Empty(key))
			break
		}
		i++
		attrs = append(attrs, otellog.KeyValue{Key: key, Value: logValue(args[i], 0)})
	}
	return attrs
}

func fieldAttribute(field zap.Field) otellog.KeyValue {
	enc := zapcore.NewMapObjectEncoder()
	field.AddTo(enc)
	return otellog.KeyValue{Key: field.Key, Value: logValue(enc.Fields[field.Key], 0)}
}

func logValue(value any, depth int) otellog.Value {
	switch v := value.(type) {
	case nil:
		return otellog.Value{}
	case string:
		return otellog.StringValue(v)
	case bool:
		return otellog.BoolValue(v)
	case []byte:
		return otellog.BytesValue(slices.Clone(v))
	case time.Time:
		return otellog.StringValue(v.UTC().Format(time.RFC3339Nano))
	case time.Duration:
		return otellog.StringValue(v.String())
	case error:
		return otellog.StringValue(v.Error())
	case fmt.Stringer:
		return otellog.StringValue(v.String())
	}
	if depth >= maxValueDepth {
		return otellog.StringValue(fmt.Sprint(value))
	}
	return reflectValue(reflect.ValueOf(value), depth)
}

func reflectValue(rv reflect.Value, depth int) otellog.Value {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return otellog.Int64Value(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= 1<<63-1 {
			return otellog.Int64Value(int64(u))
		}
	case reflect.Float32, reflect.Float64:
		return otellog.Float64Value(rv.Float())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return otellog.Value{}
		}
		return logValue(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		items := make([]otellog.Value, rv.Len())
		for i := range items {
			items[i] = logValue(rv.Index(i).Interface(), depth+1)
		}
		return otellog.SliceValue(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		kvs := make([]otellog.KeyValue, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			kvs = append(kvs, otellog.KeyValue{Key: iter.Key().String(), Value: logValue(iter.Value().Interface(), depth+1)})
		}
		slices.SortFunc(kvs, func(a, b otellog.KeyValue) int { return strings.Compare(a.Key, b.Key) })
		return otellog.MapValue(kvs...)
	}
	return otellog.StringValue(fmt.Sprint(rv.Interface()))
}
