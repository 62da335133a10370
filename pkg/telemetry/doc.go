// Package telemetry provides observability for convergence runs.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) behind one Telemetry value.
//
// # Usage
//
// Initialize telemetry at start-up:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Pass tel.Observer() to engine.NewRunner to get one span per run, one child
// span per attempted unit, and outcome counters per source kind.
//
// # Metrics
//
// A convergence run is a short-lived process, so metrics are not served over
// HTTP. When enabled they are written at shutdown to a textfile for
// node_exporter's textfile collector:
//
//	metrics:
//	  enabled: true
//	  textfile_path: /var/lib/node_exporter/textfile/converge.prom
//
// Exported series:
//
//   - converge_runs_completed_total{status}
//   - converge_run_duration_seconds
//   - converge_last_run_timestamp_seconds
//   - converge_unit_outcomes_total{kind,outcome}
//   - converge_unit_duration_seconds{kind}
//   - converge_warnings_total{kind}
//   - converge_errors_by_class_total{class,code}
//
// # Tracing
//
// Tracing is off by default. The stdout exporter pretty-prints spans; the
// otlp exporter sends them to a collector over gRPC.
package telemetry
