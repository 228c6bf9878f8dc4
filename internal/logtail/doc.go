// Package logtail reads and formats the bridge's JSON log files.
//
// # Overview
//
// Each side writes structured JSON records to <log_dir>/<side>.log. The
// `eaglebridge logs` command uses this package to print the last N records
// and, with --follow, to keep printing new ones as they are appended.
//
// # Reading Log Files
//
// Read extracts the last maxLines from a file in one pass using a ring
// buffer, so memory is O(maxLines) regardless of file size:
//
//	lines, err := logtail.Read("~/.local/share/eaglebridge/logs/responder.log", 200)
//
// ReadFrom returns only the complete lines after a byte offset plus the new
// offset. A trailing line without a newline is left for the next call. If
// the file shrank below the offset it was truncated or rotated, and reading
// restarts at the beginning.
//
// # Formatting
//
// ParseLine decodes one slog JSON record into time, level, message,
// component and the remaining attributes. Format renders it with lipgloss
// styles:
//
//	10:00:00 WARN  [server] port in use, trying next port=8080
//
// Lines that are not JSON are printed unchanged. Attributes are sorted by key
// so output is stable.
//
// # Error Handling
//
// Read and ReadFrom return nil, nil for a missing file. Other errors
// (permission denied, I/O errors) are returned wrapped. Parsing and
// formatting never fail.
package logtail
