// Package main hosts the job scraper service entrypoint.
//
// Architecture overview:
//   - Chat: users talk to a Telegram bot. /search <role> starts a session that waits for YES/NO; confirmed
//     sessions run a scrape cycle immediately and then every scraping.interval until /stop.
//   - Cycle: the pipeline expands the role into related queries, the orchestrator fans (query, source) units out
//     under a global concurrency ceiling with per-source rate limits, and every request goes through the anti-block
//     controller (rotating user agent and proxy, jittered delay, bounded exponential backoff).
//   - Filtering and dedup: records pass the user's filter merged over the configured defaults, then a
//     check-and-insert against the seen-job store (memory, SQLite, Postgres or Redis). Only new records are sent.
//   - Delivery: jobs go out as Telegram cards, optionally with an LLM summary. Each delivery is also published to
//     Pub/Sub when a topic is configured, and every cycle writes a JSON report to local disk or GCS.
//   - Health: per-source consecutive failures trigger one alert at the threshold; cron jobs prune old seen jobs,
//     send the stats summary and warn when no cycle has succeeded recently.
//   - Operator API: chi serves /healthz, /readyz, /metrics and /v1 (sessions, stats, cycle history).
//
// Quick checklist:
//   - Configure TELEGRAM_BOT_TOKEN and JOBSCRAPER_TELEGRAM_ENABLED=true, or run without Telegram to log deliveries.
//   - Pick a dedup backend (JOBSCRAPER_DEDUP_BACKEND) and set the matching DSN/URL/path.
//   - Run locally: go run ./cmd/jobscraper -config config.yaml (or rely solely on env overrides and a .env file).
//   - SIGINT/SIGTERM stop every session, cancel in-flight cycles and drain progress sinks before exit.
package main
