package logging

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const traceparentHeader = "traceparent"

// W3C Trace Context format: {version}-{trace-id}-{parent-id}-{trace-flags}
// Example: 00-ab42124a3c573678d4d8b21ba52df3bf-d21f7bc17caa5aba-01
var traceHeaderRe = regexp.MustCompile(`^([0-9a-fA-F]{2})-([0-9a-fA-F]{32})-([0-9a-fA-F]{16})-([0-9a-fA-F]{2})$`)

var (
	projectIDOnce   sync.Once
	cachedProjectID string
)

// projectEnvKeys lists the variables consulted for the GCP project, in priority order.
var projectEnvKeys = []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT", "PROJECT_ID"}

func loggerWithTrace(base *zap.Logger, header, projectID, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := traceFields(header, projectID)
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// traceparent holds the parts of a W3C traceparent header used for log correlation.
type traceparent struct {
	traceID string
	spanID  string
	sampled bool
}

func parseTraceparent(header string) (traceparent, bool) {
	matches := traceHeaderRe.FindStringSubmatch(header)
	if len(matches) != 5 {
		return traceparent{}, false
	}
	flags, err := strconv.ParseUint(matches[4], 16, 8)
	if err != nil {
		return traceparent{}, false
	}
	return traceparent{traceID: matches[2], spanID: matches[3], sampled: flags&0x01 == 0x01}, true
}

func traceFields(header, projectID string) []zap.Field {
	if projectID == "" {
		return nil
	}
	tp, ok := parseTraceparent(header)
	if !ok {
		return nil
	}
	resource := fmt.Sprintf("projects/%s/traces/%s", projectID, tp.traceID)

	return []zap.Field{
		zap.String("logging.googleapis.com/trace", resource),
		zap.String("logging.googleapis.com/spanId", tp.spanID),
		zap.Bool("logging.googleapis.com/trace_sampled", tp.sampled),
	}
}

func traceResource(header, projectID string) string {
	if projectID == "" {
		return ""
	}
	tp, ok := parseTraceparent(header)
	if !ok {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", projectID, tp.traceID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveProjectID() string {
	projectIDOnce.Do(func() {
		values := make([]string, 0, len(projectEnvKeys))
		for _, key := range projectEnvKeys {
			values = append(values, os.Getenv(key))
		}
		cachedProjectID = firstNonEmpty(values...)
	})
	return cachedProjectID
}
