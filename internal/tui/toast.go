package tui

import (
	"strings"
	"time"

	"docai-cli/internal/app"
)

const toastLifetime = 5 * time.Second

// toast is a transient notification rendered above the input box until
// it expires or the user dismisses it with Esc.
type toast struct {
	notice    app.Notice
	createdAt time.Time
}

type toastStack struct {
	items []toast
}

func (s *toastStack) push(n app.Notice) {
	s.items = append(s.items, toast{notice: n, createdAt: time.Now()})
	// Keep the stack short; older toasts age out first anyway.
	if len(s.items) > 3 {
		s.items = s.items[len(s.items)-3:]
	}
}

func (s *toastStack) expire(now time.Time) {
	keep := s.items[:0]
	for _, t := range s.items {
		if now.Sub(t.createdAt) < toastLifetime {
			keep = append(keep, t)
		}
	}
	s.items = keep
}

func (s *toastStack) dismiss() {
	if len(s.items) > 0 {
		s.items = s.items[:len(s.items)-1]
	}
}

func (s *toastStack) empty() bool {
	return len(s.items) == 0
}

func (s *toastStack) render(theme Theme, width int) string {
	if len(s.items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range s.items {
		style := theme.ToastInfo
		if t.notice.IsErr {
			style = theme.ToastErr
		}
		line := t.notice.Title
		if t.notice.Detail != "" {
			line += ": " + t.notice.Detail
		}
		b.WriteString(style.MaxWidth(width).Render(oneLine(line)))
		if i != len(s.items)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
