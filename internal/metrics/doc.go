// Package metrics provides the observability hooks of the development server.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection needs no nil checks at call sites:
//
//	c := compiler.New(cfg, compiler.WithRecorder(metrics.NoopRecorder{}))
//
// PrometheusRecorder backs the interface with client_golang collectors and
// HTTPHandler exposes them for scraping when devServer.metrics is enabled.
package metrics
