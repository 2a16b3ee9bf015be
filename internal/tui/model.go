package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docai-cli/internal/app"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusChat
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type (
	spinMsg      struct{}
	toastTickMsg struct{}
	noticeMsg    app.Notice

	uploadProgressMsg int
	uploadDoneMsg     struct {
		doc *app.Document
		err error
	}
	askDoneMsg struct {
		reply app.Message
		err   error
	}
)

type keyMap struct {
	Quit      key.Binding
	Send      key.Binding
	Upload    key.Binding
	Retry     key.Binding
	RemoveDoc key.Binding
	FocusNext key.Binding
	Dismiss   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit:      key.NewBinding(key.WithKeys("ctrl+c")),
		Send:      key.NewBinding(key.WithKeys("enter")),
		Upload:    key.NewBinding(key.WithKeys("ctrl+o")),
		Retry:     key.NewBinding(key.WithKeys("ctrl+r")),
		RemoveDoc: key.NewBinding(key.WithKeys("ctrl+x")),
		FocusNext: key.NewBinding(key.WithKeys("tab")),
		Dismiss:   key.NewBinding(key.WithKeys("esc")),
	}
}

// Model is the interactive session: a transcript viewport, an input
// box, a document status line, an upload progress bar and transient
// toasts. Upload and chat operations run as commands; the controllers
// reject overlap, so the model never interleaves two of the same kind.
type Model struct {
	app   *app.Application
	theme Theme
	keys  keyMap
	md    *AnswerRenderer

	width  int
	height int
	ready  bool
	focus  focusArea

	input  textarea.Model
	chatVP viewport.Model
	bar    progress.Model

	picker     filepicker.Model
	showPicker bool

	toasts   toastStack
	noticeCh chan app.Notice

	uploading  bool
	uploadPct  int
	uploadCh   chan int
	uploadDone chan uploadDoneMsg

	waiting    bool
	askDone    chan askDoneMsg
	spinnerPos int
	statusText string
}

func New(application *app.Application) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything about your document. Enter sends, Ctrl+O uploads."
	ta.Focus()
	ta.CharLimit = 600
	ta.SetHeight(1)
	ta.Prompt = " "
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()

	fp := filepicker.New()
	fp.AllowedTypes = []string{".pdf", ".txt", ".doc", ".docx"}
	fp.ShowHidden = false

	noticeCh := make(chan app.Notice, 16)
	application.SetNotifier(func(n app.Notice) {
		select {
		case noticeCh <- n:
		default:
			// Drop if the UI can't keep up; toasts are best-effort.
		}
	})

	m := &Model{
		app:        application,
		theme:      NewTheme(),
		keys:       newKeyMap(),
		width:      100,
		height:     30,
		focus:      focusInput,
		input:      ta,
		bar:        progress.New(progress.WithDefaultGradient()),
		picker:     fp,
		noticeCh:   noticeCh,
		statusText: "Ready",
	}
	m.md = NewAnswerRenderer(m.theme)
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitNotice())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.chatVP = viewport.New(m.chatWidth(), m.chatHeight())
			m.ready = true
		} else {
			m.chatVP.Width = m.chatWidth()
			m.chatVP.Height = m.chatHeight()
		}
		m.input.SetWidth(maxInt(10, m.width-6))
		m.bar.Width = maxInt(10, m.width-20)
		m.refreshChat()
		return m, nil

	case tea.KeyMsg:
		if m.showPicker {
			return m.updatePicker(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Upload):
			if m.uploading {
				m.toasts.push(app.Notice{Title: "Upload in progress", Detail: app.ErrUploadInFlight.Error(), IsErr: true})
				return m, m.toastTick()
			}
			m.showPicker = true
			return m, m.picker.Init()

		case key.Matches(msg, m.keys.Retry):
			if restored, ok := m.app.Chat.RetryLast(); ok {
				if restored != "" {
					m.input.SetValue(restored)
				}
				m.refreshChat()
				m.chatVP.GotoBottom()
			}
			return m, nil

		case key.Matches(msg, m.keys.RemoveDoc):
			m.app.Upload.RemoveActiveDocument()
			m.uploadPct = 0
			return m, nil

		case key.Matches(msg, m.keys.Dismiss):
			m.toasts.dismiss()
			return m, nil

		case key.Matches(msg, m.keys.FocusNext):
			m.cycleFocus()
			return m, nil

		case key.Matches(msg, m.keys.Send):
			if m.focus == focusInput {
				return m, m.onSend()
			}

		case msg.Type == tea.KeyUp && m.focus == focusChat:
			m.chatVP.LineUp(1)
			return m, nil
		case msg.Type == tea.KeyDown && m.focus == focusChat:
			m.chatVP.LineDown(1)
			return m, nil
		case msg.Type == tea.KeyPgUp:
			m.chatVP.ViewUp()
			return m, nil
		case msg.Type == tea.KeyPgDown:
			m.chatVP.ViewDown()
			return m, nil
		}

	case noticeMsg:
		m.toasts.push(app.Notice(msg))
		return m, tea.Batch(m.waitNotice(), m.toastTick())

	case toastTickMsg:
		m.toasts.expire(time.Now())
		if !m.toasts.empty() {
			return m, m.toastTick()
		}
		return m, nil

	case uploadProgressMsg:
		m.uploadPct = int(msg)
		if m.uploading {
			return m, m.waitUpload()
		}
		return m, nil

	case uploadDoneMsg:
		m.uploading = false
		m.statusText = "Ready"
		if msg.err == nil && msg.doc != nil {
			m.uploadPct = 100
			_ = m.app.Credentials.SetLastDocumentID(msg.doc.ID)
		} else {
			m.uploadPct = 0
		}
		return m, nil

	case askDoneMsg:
		m.waiting = false
		m.statusText = "Ready"
		m.refreshChat()
		m.chatVP.GotoBottom()
		return m, nil

	case spinMsg:
		m.spinnerPos = (m.spinnerPos + 1) % len(spinnerFrames)
		if m.waiting || m.uploading {
			m.refreshChat()
			m.chatVP.GotoBottom()
			return m, m.spinTick()
		}
		return m, nil
	}

	if m.showPicker {
		return m.updatePicker(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.chatVP, cmd = m.chatVP.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if key.Matches(keyMsg, m.keys.Dismiss) {
			m.showPicker = false
			return m, nil
		}
		if key.Matches(keyMsg, m.keys.Quit) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.showPicker = false
		return m, m.startUpload(path)
	}
	return m, cmd
}

// onSend applies the question validation chain synchronously so a
// rejected question leaves the input buffer untouched, then submits.
func (m *Model) onSend() tea.Cmd {
	val := m.input.Value()
	if err := app.ValidateQuestion(val); err != nil {
		m.toasts.push(app.Notice{Title: "Invalid Input", Detail: err.Error(), IsErr: true})
		return m.toastTick()
	}
	if doc := m.app.Session.ActiveDocument(); doc == nil || doc.ID == "" {
		m.toasts.push(app.Notice{Title: "No Document", Detail: app.ErrNoActiveDocument.Error(), IsErr: true})
		return m.toastTick()
	}
	identity := m.app.Identity()
	if err := app.ValidateIdentity(identity); err != nil {
		m.toasts.push(app.Notice{Title: "Authentication Required", Detail: err.Error(), IsErr: true})
		return m.toastTick()
	}
	if m.waiting {
		m.toasts.push(app.Notice{Title: "Still thinking", Detail: app.ErrQueryInFlight.Error(), IsErr: true})
		return m.toastTick()
	}

	m.input.Reset()
	m.waiting = true
	m.statusText = "Thinking…"
	m.spinnerPos = 0
	m.askDone = make(chan askDoneMsg, 1)

	go func(question string, identity app.Identity, done chan askDoneMsg) {
		reply, err := m.app.Chat.Ask(context.Background(), question, identity)
		done <- askDoneMsg{reply: reply, err: err}
	}(val, identity, m.askDone)

	return tea.Batch(m.waitAsk(), m.spinTick())
}

func (m *Model) startUpload(path string) tea.Cmd {
	fh, err := app.NewFileHandle(path)
	if err != nil {
		m.toasts.push(app.Notice{Title: "Invalid File", Detail: err.Error(), IsErr: true})
		return m.toastTick()
	}

	identity := m.app.Identity()
	m.uploading = true
	m.uploadPct = 0
	m.statusText = "Uploading " + fh.Name + "…"
	m.uploadCh = make(chan int, 32)
	m.uploadDone = make(chan uploadDoneMsg, 1)

	go func(fh app.FileHandle, identity app.Identity, progressCh chan int, done chan uploadDoneMsg) {
		doc, err := m.app.Upload.SelectFile(context.Background(), fh, identity, func(pct int) {
			select {
			case progressCh <- pct:
			default:
			}
		})
		done <- uploadDoneMsg{doc: doc, err: err}
	}(fh, identity, m.uploadCh, m.uploadDone)

	return tea.Batch(m.waitUpload(), m.spinTick())
}

func (m *Model) waitUpload() tea.Cmd {
	progressCh := m.uploadCh
	done := m.uploadDone
	return func() tea.Msg {
		if progressCh == nil || done == nil {
			return nil
		}
		select {
		case pct := <-progressCh:
			return uploadProgressMsg(pct)
		case d := <-done:
			return d
		}
	}
}

func (m *Model) waitAsk() tea.Cmd {
	done := m.askDone
	return func() tea.Msg {
		if done == nil {
			return nil
		}
		return <-done
	}
}

func (m *Model) waitNotice() tea.Cmd {
	ch := m.noticeCh
	return func() tea.Msg {
		return noticeMsg(<-ch)
	}
}

func (m *Model) spinTick() tea.Cmd {
	return tea.Tick(90*time.Millisecond, func(_ time.Time) tea.Msg { return spinMsg{} })
}

func (m *Model) toastTick() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg { return toastTickMsg{} })
}

func (m *Model) cycleFocus() {
	if m.focus == focusInput {
		m.focus = focusChat
		m.input.Blur()
	} else {
		m.focus = focusInput
		m.input.Focus()
	}
}

func (m *Model) chatWidth() int {
	return maxInt(30, m.width-2)
}

func (m *Model) chatHeight() int {
	// top bar + document line + input box + footer
	h := m.height - 1 - 1 - 3 - 1 - 2
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) refreshChat() {
	width := m.chatWidth() - 2
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	for _, msg := range m.app.Session.Messages() {
		b.WriteString(renderMessage(m.theme, m.md, msg, width))
		b.WriteString("\n\n")
	}
	if m.waiting {
		b.WriteString(m.theme.Spinner.Render(spinnerFrames[m.spinnerPos] + " thinking…"))
	}
	m.chatVP.SetContent(strings.TrimRight(b.String(), "\n"))
}

func (m *Model) View() string {
	if !m.ready {
		return "…"
	}
	if m.showPicker {
		title := m.theme.PaneTitleF.Render("Select a document (PDF, TXT, DOC, DOCX) — Esc cancels")
		return lipgloss.JoinVertical(lipgloss.Left, m.renderTopBar(), title, m.picker.View())
	}

	sections := []string{
		m.renderTopBar(),
		m.renderChatPane(),
		m.renderDocLine(),
	}
	if !m.toasts.empty() {
		sections = append(sections, m.toasts.render(m.theme, m.width-2))
	}
	sections = append(sections, m.renderInput(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderTopBar() string {
	left := m.theme.TopBarTitle.Render("docai")
	if m.app.MockMode() {
		left += " " + m.theme.TopBarBadge.Render("MOCK")
	}
	status := m.statusText
	if m.waiting || m.uploading {
		status = m.theme.Spinner.Render(spinnerFrames[m.spinnerPos] + " " + m.statusText)
	} else {
		status = m.theme.TopBarMeta.Render(status)
	}
	right := m.theme.TopBarMeta.Render(time.Now().Format("15:04"))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(status) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	a := gap / 2
	return m.theme.TopBar.Render(left + strings.Repeat(" ", a) + status + strings.Repeat(" ", gap-a) + right)
}

func (m *Model) renderChatPane() string {
	title := "Chat"
	box := m.theme.Pane
	titleStyle := m.theme.PaneTitle
	if m.focus == focusChat {
		box = m.theme.PaneFocused
		titleStyle = m.theme.PaneTitleF
	}
	return box.Width(m.chatWidth()).Height(m.chatHeight()).Render(titleStyle.Render(title) + "\n" + m.chatVP.View())
}

func (m *Model) renderDocLine() string {
	if m.uploading {
		return " " + m.bar.ViewAs(float64(m.uploadPct)/100)
	}
	doc := m.app.Session.ActiveDocument()
	if doc == nil {
		return " " + m.theme.DocEmpty.Render("No document. Ctrl+O to upload one.")
	}
	label := "Document: " + doc.Filename + " (" + doc.ID + ")"
	return " " + m.theme.DocActive.Render(truncateRunes(label, maxInt(12, m.width-4)))
}

func (m *Model) renderInput() string {
	box := m.theme.InputBox
	if m.focus == focusInput {
		box = m.theme.InputBoxF
	}
	return box.Width(maxInt(10, m.width-2)).Render(m.input.View())
}

func (m *Model) renderFooter() string {
	hints := "Enter send  Ctrl+O upload  Ctrl+R retry  Ctrl+X remove doc  Tab focus  Ctrl+C quit"
	if m.width < 90 {
		hints = "Enter send  Ctrl+O upload  Ctrl+C quit"
	}
	return m.theme.Footer.Width(m.width).Render(hints)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
