// Package scraper defines the core types shared across the fetch, extract and
// storage subsystems: tasks, artifacts, per-task results, the fetch error
// taxonomy, and the small interfaces that wire the pipeline together.
package scraper
