// Package ingest orchestrates the local half of the pipeline: walking a
// document tree, extracting text, normalizing and chunking it, and
// persisting chunk sets to the chunk store.
//
// Files are processed on a bounded errgroup; a failure on one file is
// logged and skipped rather than aborting the run. Re-ingesting an
// unchanged tree rewrites identical chunk sets under identical IDs, so
// the downstream upload stage sees nothing new. Watch keeps the chunk
// store in step with a changing tree.
package ingest
