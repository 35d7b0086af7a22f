// Package observability provides structured JSON logging for the gateway.
//
// The Logger wraps log/slog with field-chaining helpers and a small set of
// context keys used to thread request identity through the pipeline:
//
//	log := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	log.WithField("course", courseID).Info("store bound")
//
//	ctx = observability.WithRequestID(ctx, id)
//	observability.FromContext(ctx).Warn("credential mismatch")
package observability
