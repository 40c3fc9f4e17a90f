package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// LogSink is a zerolog writer that forwards each JSON log line to the
// console's log pane.
type LogSink struct {
	Send func(tea.Msg)
}

var skipFields = map[string]bool{
	zerolog.TimestampFieldName: true,
	zerolog.LevelFieldName:     true,
	zerolog.MessageFieldName:   true,
	"role":                     true,
	"name":                     true,
}

func (s LogSink) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		s.Send(LogMsg{Time: time.Now(), Level: "info", Message: strings.TrimSpace(string(p))})
		return len(p), nil
	}
	s.Send(entryFromFields(fields))
	return len(p), nil
}

func entryFromFields(fields map[string]any) LogMsg {
	msg := LogMsg{Time: time.Now()}
	if lvl, ok := fields[zerolog.LevelFieldName].(string); ok {
		msg.Level = lvl
	}
	if ts, ok := fields[zerolog.TimestampFieldName].(string); ok {
		if t, err := time.Parse(zerolog.TimeFieldFormat, ts); err == nil {
			msg.Time = t
		}
	}
	text, _ := fields[zerolog.MessageFieldName].(string)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !skipFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(text)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	msg.Message = b.String()
	return msg
}
