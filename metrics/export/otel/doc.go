// Package otel publishes edgeauth metrics through an OpenTelemetry Meter.
//
// [New] registers one observable counter per engine counter, an observable
// gauge per histogram carrying cumulative bucket counts under an "le"
// attribute, and a single callback that reads the engine snapshot on each
// collection. The caller owns the MeterProvider.
package otel
