package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/metrics/export/internaldefs"
)

// Source is what the exporter reads. *edgeauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() edgeauth.MetricsSnapshot
	AuditDropped() uint64
}

type pinger interface {
	Ping(ctx context.Context) error
}

const storeUpName = internaldefs.Namespace + "store_up"

// Exporter renders a Source on demand.
type Exporter struct {
	source      Source
	pingTimeout time.Duration
}

// New returns an exporter for engine.
func New(engine *edgeauth.Engine) *Exporter {
	return NewFromSource(engine)
}

// NewFromSource returns an exporter for any Source.
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source, pingTimeout: time.Second}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render(r.Context())))
	})
}

// Render returns the exposition text. Disabled metrics render nothing except
// the store ping.
func (p *Exporter) Render(ctx context.Context) string {
	if p == nil || p.source == nil {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 || dropped > 0 {
		for _, def := range internaldefs.CounterDefs {
			writeHeader(&b, def.Name, def.Help, "counter")
			writeSample(&b, def.Name, "", snapshot.Counters[def.ID])
		}
		for _, def := range internaldefs.HistogramDefs {
			writeHistogram(&b, def, internaldefs.Cumulative(snapshot.Histograms[def.ID]))
		}
		writeHeader(&b, internaldefs.AuditDroppedName, "Audit events dropped due to dispatcher backpressure.", "counter")
		writeSample(&b, internaldefs.AuditDroppedName, "", dropped)
	}

	if pg, ok := p.source.(pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, p.pingTimeout)
		defer cancel()
		var up uint64
		if pg.Ping(ctx) == nil {
			up = 1
		}
		writeHeader(&b, storeUpName, "Whether the refresh token store answered a ping.", "gauge")
		writeSample(&b, storeUpName, "", up)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, labels string, value uint64) {
	b.WriteString(name)
	b.WriteString(labels)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, def internaldefs.Def, cumulative [internaldefs.BucketCount]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, def.Name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	// Durations are bucketed only; the sum is not tracked.
	writeSample(b, def.Name+"_sum", "", 0)
	writeSample(b, def.Name+"_count", "", cumulative[internaldefs.BucketCount-1])
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
