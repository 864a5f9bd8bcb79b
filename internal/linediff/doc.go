// Package linediff computes line-level differences between two texts.
//
// It is a thin layer over go-difflib's SequenceMatcher: [Blocks] returns the
// changed regions as index pairs, [Similarity] scores rename candidates, and
// [Unified] renders a patch. Lines are produced by [Split], which keeps each
// line's terminator so that edits built from blocks reproduce the input byte
// for byte.
package linediff
