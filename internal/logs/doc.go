// Package logs reads the daemon log file for `autopublish logs`.
//
// Last returns the final lines with bounded memory. Follow polls from an
// offset until its context ends and restarts from the top when the file is
// truncated or rotated.
package logs
