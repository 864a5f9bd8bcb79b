// Package formatter runs external code formatters as subprocesses.
//
// Each adapter implements gate.Formatter: the file content goes to the
// formatter's stdin and the formatted file is read from stdout. [Command] is
// the generic adapter; [ClangFormat] and [Buildifier] know the flags of
// their tools. A [Registry] picks the adapter for a path by glob.
//
// A binary that cannot be started yields gate.FormatterUnavailableError. A
// non-zero exit, a signal or a timeout yields gate.FormatterCrashError.
package formatter
