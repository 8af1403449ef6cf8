// Package prometheus renders edgeauth metrics in the Prometheus text
// exposition format.
//
// [New] wraps an [edgeauth.Engine]; mount [Exporter.Handler] on /metrics.
// Counters are named edgeauth_*_total and the refresh latency histogram is
// edgeauth_refresh_latency_seconds. When the source can be pinged the
// exporter also reports edgeauth_store_up.
//
// Nothing is registered globally.
package prometheus
