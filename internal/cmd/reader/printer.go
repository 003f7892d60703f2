package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/parser"
)

var (
	timeColor  = color.New(color.Faint).SprintFunc()
	nameColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	fieldColor = color.RGB(128, 168, 196).SprintFunc()
	refColor   = color.New(color.FgMagenta).SprintFunc()
)

// eventPrinter writes one line per event, as text or JSON.
type eventPrinter struct {
	w    io.Writer
	json bool
	enc  *json.Encoder
}

func newEventPrinter(w io.Writer, asJSON bool) *eventPrinter {
	p := &eventPrinter{w: w, json: asJSON}
	if asJSON {
		p.enc = json.NewEncoder(w)
	}
	return p
}

type jsonEvent struct {
	Name       string         `json:"name"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	DurationNs int64          `json:"duration_ns"`
	Fields     map[string]any `json:"fields"`
}

func (p *eventPrinter) print(e *parser.Event) error {
	if p.json {
		return p.enc.Encode(jsonEvent{
			Name:       e.Name(),
			Start:      e.StartTime().UTC(),
			End:        e.EndTime().UTC(),
			DurationNs: e.EndNanos - e.StartNanos,
			Fields:     e.Fields(),
		})
	}
	var b strings.Builder
	b.WriteString(timeColor(e.StartTime().UTC().Format(time.RFC3339Nano)))
	b.WriteByte(' ')
	b.WriteString(nameColor(e.Name()))
	if d := e.Duration(); d > 0 {
		fmt.Fprintf(&b, " (%s)", d)
	}
	writeFields(&b, e.Fields())
	b.WriteByte('\n')
	_, err := io.WriteString(p.w, b.String())
	return err
}

func writeFields(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(fieldColor(k))
		b.WriteByte('=')
		switch v := m[k].(type) {
		case map[string]any:
			b.WriteByte('{')
			writeFields(b, v)
			b.WriteString(" }")
		case parser.Reference:
			b.WriteString(refColor(v.String()))
		case string:
			b.WriteString(strconv.Quote(v))
		case nil:
			b.WriteString("null")
		default:
			fmt.Fprint(b, v)
		}
	}
}

// parseTime accepts RFC3339, nanoseconds since the epoch, or a duration
// relative to now such as -10m. Empty input yields the zero time.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(0, ns), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, errors.Errorf("invalid time %q; expected RFC3339, nanoseconds or a relative duration", s)
}
