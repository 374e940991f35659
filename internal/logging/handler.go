package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// DefaultMaxValueLen caps string attribute values. Prompts and agent
// replies can run to many kilobytes.
const DefaultMaxValueLen = 2000

// SanitizingHandler redacts secrets and truncates oversized string values
// before passing records to the wrapped handler.
type SanitizingHandler struct {
	next        slog.Handler
	sanitizer   *Sanitizer
	maxValueLen int
}

// NewSanitizingHandler wraps next. maxValueLen <= 0 disables truncation.
func NewSanitizingHandler(next slog.Handler, sanitizer *Sanitizer, maxValueLen int) *SanitizingHandler {
	return &SanitizingHandler{next: next, sanitizer: sanitizer, maxValueLen: maxValueLen}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, h.cleanString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.cleanAttr(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.cleanAttr(a)
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean), sanitizer: h.sanitizer, maxValueLen: h.maxValueLen}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name), sanitizer: h.sanitizer, maxValueLen: h.maxValueLen}
}

func (h *SanitizingHandler) cleanString(s string) string {
	s = h.sanitizer.Sanitize(s)
	if h.maxValueLen > 0 && len(s) > h.maxValueLen {
		return fmt.Sprintf("%s...(%d bytes truncated)", s[:h.maxValueLen], len(s)-h.maxValueLen)
	}
	return s
}

func (h *SanitizingHandler) cleanAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.cleanString(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = h.cleanAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, h.cleanString(err.Error()))
		}
		return a
	default:
		return a
	}
}

// tagKeys are lifted out of the attribute list and printed as a bracketed
// prefix, in this order.
var tagKeys = []string{"component", "conversation_id", "round", "agent"}

var (
	levelStyles = map[slog.Level]lipgloss.Style{
		slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
		slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		slog.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
	}
	tagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
	keyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
)

// PrettyHandler writes one compact colored line per record for
// interactive terminals:
//
//	15:04:05 INF [conversation 1a2b3c4d r2 alice] agent replied chars=312
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewPrettyHandler creates a new pretty handler.
func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	tags := map[string]string{}
	var rest []slog.Attr
	for _, a := range h.attrs {
		if isTag(a.Key) {
			tags[a.Key] = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		if prefix == "" && isTag(a.Key) {
			tags[a.Key] = a.Value.String()
			return true
		}
		rest = append(rest, slog.Attr{Key: prefix + a.Key, Value: a.Value})
		return true
	})

	var b strings.Builder
	b.WriteString(r.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(formatLevel(r.Level))
	if t := formatTags(tags); t != "" {
		b.WriteByte(' ')
		b.WriteString(tagStyle.Render(t))
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range rest {
		writeAttr(&b, "", a)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a handler that prints attrs on every line, qualified
// by the groups open at the time of the call.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	prefix := groupPrefix(h.groups)
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func isTag(key string) bool {
	for _, k := range tagKeys {
		if k == key {
			return true
		}
	}
	return false
}

func formatTags(tags map[string]string) string {
	parts := make([]string, 0, len(tags))
	for _, k := range tagKeys {
		v, ok := tags[k]
		if !ok || v == "" {
			continue
		}
		switch k {
		case "conversation_id":
			if len(v) > 8 {
				v = v[:8]
			}
			v = "conversation " + v
		case "round":
			v = "r" + v
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatLevel(level slog.Level) string {
	var label string
	switch {
	case level < slog.LevelInfo:
		label, level = "DBG", slog.LevelDebug
	case level < slog.LevelWarn:
		label, level = "INF", slog.LevelInfo
	case level < slog.LevelError:
		label, level = "WRN", slog.LevelWarn
	default:
		label, level = "ERR", slog.LevelError
	}
	return levelStyles[level].Render(label)
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", g)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", keyStyle.Render(prefix+a.Key), a.Value.Any())
}
