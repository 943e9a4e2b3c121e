// Package backend provides the Kinfolk API server.

// Binaries live under cmd/ (server, migrate, seed, cli). The code is
// organized into subpackages:

// - internal/websocket: real-time hub, presence, direct messages, notification fan-out, Redis relay
// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/repository: gorm persistence for users, friends, posts, messages, notifications
// - internal/auth: JWT authentication and the gin auth middleware
// - internal/database: Database connection and migrations
// - internal/email: Offline notification email (SES)
// - internal/middleware: HTTP middleware (rate limiting, logging, metrics, tracing)
// - internal/retention: Periodic pruning of old read notifications
// - internal/seed: Development and test data

// See the individual package documentation for detailed API reference.
package backend
