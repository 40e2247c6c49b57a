package logging

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testTraceparent = "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01"

func fieldMap(fields []zap.Field) map[string]zap.Field {
	m := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}

func TestTraceFields(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		wantSampled int64
	}{
		{"sampled", testTraceparent, 1},
		{"not sampled", "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-00", 0},
		{"sampled with extra flags", "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-03", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := fieldMap(traceFields(tt.header, "test-project"))
			if len(fields) != 3 {
				t.Fatalf("expected 3 fields, got %d", len(fields))
			}
			want := "projects/test-project/traces/3d23d071b5bfd6579171efce907685cb"
			if f := fields["logging.googleapis.com/trace"]; f.String != want {
				t.Fatalf("unexpected trace field: %+v", f)
			}
			if f := fields["logging.googleapis.com/spanId"]; f.String != "08f067aa0ba902b7" {
				t.Fatalf("unexpected span field: %+v", f)
			}
			f := fields["logging.googleapis.com/trace_sampled"]
			if f.Type != zapcore.BoolType || f.Integer != tt.wantSampled {
				t.Fatalf("unexpected sampled field: %+v", f)
			}
		})
	}
}

func TestTraceFieldsInvalid(t *testing.T) {
	for _, header := range []string{"", "invalid", "trace/span;o=1", "00-zz23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01"} {
		if fields := traceFields(header, "test-project"); fields != nil {
			t.Fatalf("expected nil fields for %q, got %v", header, fields)
		}
	}
	if fields := traceFields(testTraceparent, ""); fields != nil {
		t.Fatalf("expected nil fields when project missing, got %v", fields)
	}
}

func TestTraceResource(t *testing.T) {
	if got := traceResource(testTraceparent, "p"); got != "projects/p/traces/3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("unexpected resource %q", got)
	}
	if got := traceResource(testTraceparent, ""); got != "" {
		t.Fatalf("expected empty resource without project, got %q", got)
	}
	if got := traceResource("bogus", "p"); got != "" {
		t.Fatalf("expected empty resource for bad header, got %q", got)
	}
}

func TestLoggerWithTrace(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	loggerWithTrace(zap.New(core), testTraceparent, "test-project", "req-123").Info("hello")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := fieldMap(entries[0].Context)
	if f, ok := fields["requestId"]; !ok || f.String != "req-123" {
		t.Fatalf("requestId field mismatch: %+v", fields)
	}
	if _, ok := fields["logging.googleapis.com/trace"]; !ok {
		t.Fatalf("expected trace field: %+v", fields)
	}
}

func TestLoggerWithTraceNoFields(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	if got := loggerWithTrace(base, "", "", ""); got != base {
		t.Fatal("expected base logger to be returned unchanged")
	}
	if got := loggerWithTrace(nil, "", "", ""); got == nil {
		t.Fatal("expected nop logger for nil base")
	}
}

func TestResolveProjectIDPriority(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    string
	}{
		{"GOOGLE_CLOUD_PROJECT first", map[string]string{"GOOGLE_CLOUD_PROJECT": "a", "GCP_PROJECT": "b"}, "a"},
		{"GCP_PROJECT fallback", map[string]string{"GCP_PROJECT": "b", "GCLOUD_PROJECT": "c"}, "b"},
		{"GCLOUD_PROJECT fallback", map[string]string{"GCLOUD_PROJECT": "c", "PROJECT_ID": "d"}, "c"},
		{"PROJECT_ID fallback", map[string]string{"PROJECT_ID": "d"}, "d"},
		{"none", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projectIDOnce = sync.Once{}
			cachedProjectID = ""
			t.Cleanup(func() {
				projectIDOnce = sync.Once{}
				cachedProjectID = ""
			})
			for _, key := range projectEnvKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			if got := resolveProjectID(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
