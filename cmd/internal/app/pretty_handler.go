package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one line per record for local development:
//
//	12:04:05.120 WARN  auth.refresh.reuse_detected user=u1 family=f9 reason=reuse_detected revoked=3 @controller.go:351
//
// Session identifiers, revocation reasons and outcomes get short keys and
// colours. Everything else is plain key=value.
type prettyHandler struct {
	w      io.Writer
	level  slog.Leveler
	source bool
	color  bool
	attrs  []slog.Attr
	groups []string
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, color: color, level: slog.LevelInfo, mu: &sync.Mutex{}}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(h.paint(ts.Format("15:04:05.000"), ansiDim))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(r.Level))
	b.WriteByte(' ')
	b.WriteString(h.paint(r.Message, eventColor(r.Message)))

	for _, a := range h.attrs {
		h.writeAttr(&b, a, "")
	}
	group := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, a, group)
		return true
	})

	if h.source && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(h.paint(fmt.Sprintf(" @%s:%d", filepath.Base(frame.File), frame.Line), ansiDim))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	cp.attrs = append([]slog.Attr{}, h.attrs...)
	// Pre-bound attrs keep the group prefix in effect when they were added.
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Attr{Key: prefix + "." + a.Key, Value: a.Value}
		}
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) writeAttr(b *strings.Builder, a slog.Attr, parent string) {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}
	if parent != "" && key != "" {
		key = parent + "." + key
	} else if parent != "" {
		key = parent
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.writeAttr(b, ga, key)
		}
		return
	}

	name, val := key, quoteIfNeeded(valueToString(a.Value))
	if f, ok := prettyFields[key]; ok {
		if f.alias != "" {
			name = f.alias
		}
		val = f.render(h, a.Value)
	}
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(val)
}

type prettyField struct {
	alias  string
	render func(h *prettyHandler, v slog.Value) string
}

var prettyFields = map[string]prettyField{
	"user_id":        {alias: "user", render: (*prettyHandler).identifier},
	"family_id":      {alias: "family", render: (*prettyHandler).identifier},
	"record_id":      {alias: "record", render: (*prettyHandler).identifier},
	"token_user_id":  {alias: "token_user", render: (*prettyHandler).identifier},
	"record_user_id": {alias: "record_user", render: (*prettyHandler).identifier},
	"reason":         {render: (*prettyHandler).reason},
	"outcome":        {render: (*prettyHandler).outcome},
	"result":         {render: (*prettyHandler).outcome},
	"method": {render: func(h *prettyHandler, v slog.Value) string {
		return h.paint(strings.ToUpper(strings.TrimSpace(v.String())), ansiBlue)
	}},
	"path": {render: func(h *prettyHandler, v slog.Value) string {
		return h.paint(quoteIfNeeded(v.String()), ansiCyan)
	}},
	"status":       {render: (*prettyHandler).status},
	"status_class": {alias: "class", render: (*prettyHandler).statusClass},
	"duration_ms":  {alias: "took", render: (*prettyHandler).durationMS},
}

func (h *prettyHandler) identifier(v slog.Value) string {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return `""`
	}
	return h.paint(quoteIfNeeded(s), ansiCyan)
}

// reason colours refresh revocation and resolver rejection reasons by how
// much they matter: forced sign-outs stand out, routine retirements fade.
func (h *prettyHandler) reason(v slog.Value) string {
	s := strings.TrimSpace(v.String())
	switch s {
	case "reuse_detected", "session_version", "admin":
		return h.paint(s, ansiRed)
	case "token_expired", "token_invalid", "user_not_found":
		return h.paint(s, ansiYellow)
	case "rotated", "logout", "token_missing":
		return h.paint(s, ansiDim)
	}
	return quoteIfNeeded(s)
}

func (h *prettyHandler) outcome(v slog.Value) string {
	s := strings.ToLower(strings.TrimSpace(v.String()))
	switch s {
	case "ok", "success", "authenticated", "all":
		return h.paint(s, ansiGreen)
	case "redirect", "degraded", "anonymous":
		return h.paint(s, ansiCyan)
	case "invalid", "invalid_credentials", "not_active", "race_lost", "missing", "client_error":
		return h.paint(s, ansiYellow)
	case "error", "unavailable", "server_error", "reuse_detected", "stale_version":
		return h.paint(s, ansiRed)
	}
	return quoteIfNeeded(s)
}

func (h *prettyHandler) status(v slog.Value) string {
	n, ok := valueToInt64(v)
	if !ok {
		return quoteIfNeeded(valueToString(v))
	}
	code := ansiGreen
	switch {
	case n >= 500:
		code = ansiRed
	case n >= 400:
		code = ansiYellow
	case n >= 300:
		code = ansiCyan
	}
	return h.paint(strconv.FormatInt(n, 10), code)
}

func (h *prettyHandler) statusClass(v slog.Value) string {
	s := strings.TrimSpace(v.String())
	if len(s) == 3 && s[1:] == "xx" {
		return h.paint(s, statusClassColor(s[0]))
	}
	return quoteIfNeeded(s)
}

func statusClassColor(c byte) string {
	switch c {
	case '5':
		return ansiRed
	case '4':
		return ansiYellow
	case '3':
		return ansiCyan
	}
	return ansiGreen
}

func (h *prettyHandler) durationMS(v slog.Value) string {
	n, ok := valueToInt64(v)
	if !ok {
		return quoteIfNeeded(valueToString(v))
	}
	s := strconv.FormatInt(n, 10) + "ms"
	switch {
	case n >= 1000:
		return h.paint(s, ansiRed)
	case n >= 250:
		return h.paint(s, ansiYellow)
	}
	return s
}

func (h *prettyHandler) levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint("ERROR", ansiRed)
	case level >= slog.LevelWarn:
		return h.paint("WARN ", ansiYellow)
	case level >= slog.LevelInfo:
		return h.paint("INFO ", ansiBlue)
	}
	return h.paint("DEBUG", ansiMagenta)
}

// eventColor picks a colour for dotted event names such as
// "auth.refresh.persist.fail" from their last segment.
func eventColor(msg string) string {
	last := msg
	if i := strings.LastIndexByte(msg, '.'); i >= 0 {
		last = msg[i+1:]
	}
	switch last {
	case "fail":
		return ansiRed
	case "reuse_detected", "rate_limited", "stale_version", "subject_mismatch", "degraded":
		return ansiYellow
	}
	if strings.HasPrefix(msg, "auth.") || strings.HasPrefix(msg, "session.") {
		return ansiBright
	}
	return ""
}

func (h *prettyHandler) paint(s, code string) string {
	if !h.color || code == "" {
		return s
	}
	return code + s + ansiReset
}

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	// Numbers, bools and durations already format as expected.
	return v.String()
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	}
	return 0, false
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
