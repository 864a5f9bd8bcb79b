// Package marker finds lines carrying "do not submit" style markers.
//
// Patterns are literal strings matched anywhere in a line. Scanning can cover
// whole files or only the lines a change added, so a marker that already
// exists at the base revision does not block a commit that leaves it alone.
package marker
