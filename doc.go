// Package backend provides the Emberfeed API server.

// This package contains the main application entry point. The actual API
// documentation is organized into subpackages:

// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Authentication and JWT issuance
// - internal/draftwatch: Draft session tracking over WebSocket
// - internal/storage: File storage (S3) operations
// - internal/database: Database connection and migrations
// - internal/cache: Redis client
// - internal/middleware: HTTP middleware (logging, metrics, rate limiting)
// - internal/logger: Structured logging setup
// - internal/metrics: Prometheus metric definitions
// - internal/telemetry: OpenTelemetry tracing setup
// - pkg/draftclient: Go client for the draft session tracker

// See the individual package documentation for detailed API reference.
package backend
