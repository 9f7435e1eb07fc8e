// Package extraction extracts structured features from source documents.
//
// The Extractor collaborator turns one document into an ExtractionRecord;
// the Loop controller drives it over the run's document queue with a bounded
// worker pool, a shared retry budget, and skip-with-record failure handling.
// A single bad document never aborts a batch.
package extraction
