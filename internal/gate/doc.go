// Package gate decides whether the changed lines of a diff are formatted.
//
// A [Resolver] asks a [Backend] which files differ between two revisions
// and computes the line ranges each change added. [Gate.Run] formats every
// changed file in parallel and [Extract] keeps only the corrections that
// touch those ranges, collecting them into a [Report]. [Apply] writes the
// kept edits back to the working tree.
package gate
