// Package discovery implements the annual-report discovery pipeline: query
// generation, search result filtering, candidate extraction from fetched
// pages, scoring, ranking, and the per-entity orchestrator that assembles the
// fixed-width output rows.
package discovery
