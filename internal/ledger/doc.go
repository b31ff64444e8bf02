// Package ledger is the durable record of every document the pipeline has
// seen and how far it has progressed. All stage transitions are persisted
// here before the next stage starts, so an interrupted run resumes exactly
// where it left off.
package ledger
