package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
)

// DefaultTimestampFormat is used when a formatter has none configured.
const DefaultTimestampFormat = time.RFC3339Nano

// JSONFormatter renders one JSON object per entry.
type JSONFormatter struct {
	TimestampFormat string
}

func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = DefaultTimestampFormat
	}
	m := make(map[string]interface{}, len(entry.Fields)+5)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[k] = v
	}
	m["time"] = entry.Timestamp.Format(layout)
	m["level"] = entry.Level.String()
	m["msg"] = entry.Message
	if entry.Caller != "" {
		m["caller"] = entry.Caller
	}
	if entry.Error != nil {
		m[ErrorKey] = entry.Error.Error()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders "time LEVEL [component] message key=value ...". Level
// names are colored unless DisableColors is set.
type TextFormatter struct {
	TimestampFormat string
	DisableColors   bool
	ShowCaller      bool
}

var levelColors = map[Level]*color.Color{
	DebugLevel: color.New(color.FgHiBlack),
	InfoLevel:  color.New(color.FgCyan),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed),
	FatalLevel: color.New(color.FgRed, color.Bold),
}

var keyColor = color.New(color.FgBlue)

func init() {
	// Color decisions are made per formatter, not from stdout.
	for _, c := range levelColors {
		c.EnableColor()
	}
	keyColor.EnableColor()
}

func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = DefaultTimestampFormat
	}
	var b bytes.Buffer
	b.WriteString(entry.Timestamp.Format(layout))
	b.WriteByte(' ')

	level := fmt.Sprintf("%-5s", entry.Level.String())
	if c, ok := levelColors[entry.Level]; ok && !f.DisableColors {
		level = c.Sprint(level)
	}
	b.WriteString(level)
	b.WriteByte(' ')

	if comp, ok := entry.Fields[ComponentKey]; ok {
		fmt.Fprintf(&b, "[%v] ", comp)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		if k != ComponentKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.writePair(&b, k, entry.Fields[k])
	}
	if entry.Error != nil {
		f.writePair(&b, ErrorKey, entry.Error.Error())
	}
	if f.ShowCaller && entry.Caller != "" {
		f.writePair(&b, "caller", entry.Caller)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *TextFormatter) writePair(b *bytes.Buffer, key string, value interface{}) {
	b.WriteByte(' ')
	if f.DisableColors {
		b.WriteString(key)
	} else {
		b.WriteString(keyColor.Sprint(key))
	}
	b.WriteByte('=')
	s := fmt.Sprint(value)
	if needsQuote(s) {
		s = fmt.Sprintf("%q", s)
	}
	b.WriteString(s)
}

func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
