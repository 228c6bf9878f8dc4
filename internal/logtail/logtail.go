package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := newScanner(file)
	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// ReadFrom returns the complete lines written after offset and the offset
// just past the last of them. A file shorter than offset was truncated or
// rotated and is read from the start.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log: %w", err)
	}

	reader := bufio.NewReader(file)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// A trailing partial line is picked up on the next call.
			break
		}
		offset += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, offset, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

// Line is one decoded JSON log record.
type Line struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	Attrs     map[string]string
}

// ParseLine decodes a JSON record written by the file handler. Lines that
// are not JSON come back as a message-only Line with ok=false.
func ParseLine(raw string) (Line, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Line{Message: raw}, false
	}
	line := Line{Attrs: make(map[string]string)}
	for key, value := range fields {
		switch key {
		case "time":
			if s, ok := value.(string); ok {
				line.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "level":
			line.Level = fmt.Sprint(value)
		case "msg":
			line.Message = fmt.Sprint(value)
		case "component":
			line.Component = fmt.Sprint(value)
		default:
			line.Attrs[key] = flatten(value)
		}
	}
	return line, true
}

func flatten(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64, bool, nil:
		return fmt.Sprint(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

var (
	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87AFFF"))
	attrStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	levelStyles    = map[string]lipgloss.Style{
		"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(true),
		"INFO":  lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")).Bold(true),
		"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		"ERROR": lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

// Format renders a Line for the terminal:
//
//	15:04:05 INFO  [server] listening port=8080
func Format(line Line) string {
	var b strings.Builder
	if !line.Time.IsZero() {
		b.WriteString(timeStyle.Render(line.Time.Local().Format("15:04:05")))
		b.WriteByte(' ')
	}
	if line.Level != "" {
		level := strings.ToUpper(line.Level)
		style, ok := levelStyles[level]
		if !ok {
			style = levelStyles["INFO"]
		}
		b.WriteString(style.Render(fmt.Sprintf("%-5s", level)))
		b.WriteByte(' ')
	}
	if line.Component != "" {
		b.WriteString(componentStyle.Render("[" + line.Component + "]"))
		b.WriteByte(' ')
	}
	b.WriteString(line.Message)

	keys := make([]string, 0, len(line.Attrs))
	for k := range line.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(attrStyle.Render(k + "=" + line.Attrs[k]))
	}
	return b.String()
}

// FormatLines parses and renders raw log lines.
func FormatLines(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		line, _ := ParseLine(r)
		out = append(out, Format(line))
	}
	return out
}
