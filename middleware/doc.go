// Package middleware provides composable middleware around admission
// decisions: logging, OTel metrics and tracing, panic recovery, and decision
// deadlines. The launcher runs the gate through a middleware chain; see
// launch.WithMiddleware.
package middleware
