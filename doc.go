// Package backend is the KisanMitra API server.
//
// The binaries live under cmd/ (server and the kisanctl operator tool); the
// code is organized into subpackages:
//
//   - internal/handlers: HTTP handlers and route table
//   - internal/feed: feed ranking, preferences and interactions
//   - internal/groups: groups, membership and post moderation
//   - internal/posts: public posts and comments
//   - internal/assistant: AI chat with answer caching and rate limits
//   - internal/cache: TTL cache and Redis client
//   - internal/ratelimit: hourly/daily request limiter
//   - internal/analytics: asynchronous operation recorder and reporting
//   - internal/otp: one-time-code sign-in
//   - internal/search: post search over the database or Elasticsearch
//   - internal/storage: post image uploads to S3
//   - internal/container: service wiring and lifecycle
package backend
