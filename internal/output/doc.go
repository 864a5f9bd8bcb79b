// Package output formats gate reports for display or machine consumption.
//
// Five formats are supported:
//   - text     - human-readable terminal output with before/after lines (default)
//   - json     - full structured JSON report
//   - patch    - unified diff that applies the in-scope fixes with git apply
//   - sarif    - SARIF v2.1.0 with fix objects, for code-scanning upload
//   - markdown - PR-comment-friendly summary with a collapsible diff per file
//
// Use [GetWriter] to obtain a [Writer] for a given format string, then call
// [Writer.Write] with an [io.Writer] and a [*gate.Report]. [WriteReport]
// handles destination selection.
package output
