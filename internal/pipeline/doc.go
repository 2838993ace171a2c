// Package pipeline sequences the gathering phases of one run.
//
// A Gatherer prepares the working directory, picks the address resolver,
// optionally starts a progress aggregator, then runs the directory, data,
// share-content and edge phases in that fixed order. Phases that do not
// apply are skipped; the first phase that fails stops the run.
package pipeline
