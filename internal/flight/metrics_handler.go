package flight

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// MetricsHandler exposes one or more metric sets in the Prometheus text
// format. Keys of sets become metric name prefixes.
func MetricsHandler(sets map[string]*Metrics) http.Handler {
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		builder := &strings.Builder{}
		for _, name := range names {
			m := sets[name]
			writeMetric(builder, name+"_active", "gauge", m.Active())
			writeMetric(builder, name+"_rejected_total", "counter", m.Rejected())
			writeMetric(builder, name+"_completed_total", "counter", m.Completed())
			writeMetric(builder, name+"_failed_total", "counter", m.Failed())
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(builder.String()))
	})
}

func writeMetric(builder *strings.Builder, name, metricType string, value int64) {
	fmt.Fprintf(builder, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(builder, "%s %d\n", name, value)
}
