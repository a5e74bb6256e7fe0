package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/boardcast/boardcast/pkg/client"
	"github.com/boardcast/boardcast/pkg/protocol"
)

type state int

const (
	stateAuth state = iota
	stateBoard
)

// Model is the terminal client: an auth screen followed by the live board.
type Model struct {
	api    *client.API
	conn   *client.Connection
	addr   string
	useTLS bool

	state state

	usernameInput textinput.Model
	passwordInput textinput.Model
	focusPassword bool
	registering   bool

	viewport viewport.Model
	compose  textinput.Model
	page     *client.ThreadPage
	online   int
	status   string
	errText  string

	width  int
	height int
	ready  bool
}

// NewModel creates the client UI for the given server address.
func NewModel(addr string, useTLS bool) Model {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 20
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword

	compose := textinput.New()
	compose.Placeholder = "post a message, /reply <id> <text>, /page <n>"
	compose.CharLimit = 500

	return Model{
		api:           client.NewAPI(addr, useTLS),
		addr:          addr,
		useTLS:        useTLS,
		state:         stateAuth,
		usernameInput: username,
		passwordInput: password,
		compose:       compose,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Messages produced by async commands.

type authDoneMsg struct {
	conn *client.Connection
}

type eventMsg struct {
	event client.Event
}

type disconnectedMsg struct {
	err error
}

type pageLoadedMsg struct {
	page *client.ThreadPage
}

type errMsg struct {
	err error
}

// authenticate registers (optionally), logs in and runs the handshake.
func authenticate(api *client.API, addr string, useTLS bool, username, password string, register bool) tea.Cmd {
	return func() tea.Msg {
		if register {
			if _, err := api.Register(username, password); err != nil {
				return errMsg{err: err}
			}
		}

		token, err := api.Login(username, password)
		if err != nil {
			return errMsg{err: err}
		}

		conn := client.NewConnection(addr, useTLS)
		if err := conn.Connect(); err != nil {
			return errMsg{err: err}
		}
		if err := conn.Hello(token); err != nil {
			conn.Close()
			return errMsg{err: err}
		}

		return authDoneMsg{conn: conn}
	}
}

// waitForEvent blocks on the next server event.
func waitForEvent(conn *client.Connection) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-conn.Events()
		if !ok {
			return disconnectedMsg{err: conn.Reason().Err}
		}
		return eventMsg{event: event}
	}
}

func fetchPage(api *client.API, page int) tea.Cmd {
	return func() tea.Msg {
		result, err := api.ListPage(page)
		if err != nil {
			return errMsg{err: err}
		}
		return pageLoadedMsg{page: result}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 1
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		if m.page != nil {
			m.viewport.SetContent(renderPage(m.page, m.viewport.Width))
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.conn != nil {
				m.conn.Close()
			}
			return m, tea.Quit
		}
		switch m.state {
		case stateAuth:
			return m.updateAuth(msg)
		case stateBoard:
			return m.updateBoard(msg)
		}

	case authDoneMsg:
		m.conn = msg.conn
		m.errText = ""
		m.status = "authenticating"
		return m, waitForEvent(m.conn)

	case eventMsg:
		return m.handleEvent(msg.event)

	case disconnectedMsg:
		m.errText = "disconnected from server"
		if msg.err != nil {
			m.errText = fmt.Sprintf("disconnected: %v", msg.err)
		}
		return m, tea.Quit

	case pageLoadedMsg:
		m.page = msg.page
		if m.ready {
			m.viewport.SetContent(renderPage(m.page, m.viewport.Width))
		}
		return m, nil

	case errMsg:
		m.errText = msg.err.Error()
		return m, nil
	}

	return m, nil
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		m.focusPassword = !m.focusPassword
		if m.focusPassword {
			m.usernameInput.Blur()
			m.passwordInput.Focus()
		} else {
			m.passwordInput.Blur()
			m.usernameInput.Focus()
		}
		return m, nil

	case tea.KeyCtrlR:
		m.registering = !m.registering
		return m, nil

	case tea.KeyEnter:
		username := strings.TrimSpace(m.usernameInput.Value())
		password := m.passwordInput.Value()
		if username == "" || password == "" {
			m.errText = "username and password required"
			return m, nil
		}
		m.errText = ""
		m.status = "connecting"
		return m, authenticate(m.api, m.addr, m.useTLS, username, password, m.registering)
	}

	var cmd tea.Cmd
	if m.focusPassword {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	} else {
		m.usernameInput, cmd = m.usernameInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m.submitCompose()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyCtrlN:
		if m.page != nil && m.page.Page < m.page.TotalPages {
			return m, fetchPage(m.api, m.page.Page+1)
		}
		return m, nil

	case tea.KeyCtrlP:
		if m.page != nil && m.page.Page > 1 {
			return m, fetchPage(m.api, m.page.Page-1)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func (m Model) submitCompose() (tea.Model, tea.Cmd) {
	action, err := parseCompose(m.compose.Value())
	if err != nil {
		m.errText = err.Error()
		return m, nil
	}

	m.compose.SetValue("")
	m.errText = ""

	switch action.kind {
	case composeNone:
		return m, nil

	case composePage:
		return m, fetchPage(m.api, action.page)

	case composeRefresh:
		page := 1
		if m.page != nil {
			page = m.page.Page
		}
		return m, fetchPage(m.api, page)

	case composePost:
		if err := m.conn.Post(action.content, action.parentID); err != nil {
			m.errText = err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleEvent(event client.Event) (tea.Model, tea.Cmd) {
	next := waitForEvent(m.conn)

	switch event.Tag {
	case protocol.TypeHello:
		if !event.Hello.Success {
			m.errText = fmt.Sprintf("handshake failed: %s", event.Hello.Error)
			return m, tea.Quit
		}
		m.state = stateBoard
		m.status = "connected"
		m.compose.Focus()
		return m, tea.Batch(next, fetchPage(m.api, 1))

	case protocol.TypePost:
		if event.Post.Success {
			m.status = "posted"
		} else {
			m.errText = event.Post.Error
		}
		return m, next

	case protocol.TypeNewMessage:
		m.status = fmt.Sprintf("new message from %s", event.Message.AuthorName)
		page := 1
		if m.page != nil {
			page = m.page.Page
		}
		// Refetch so threading and ordering stay exact.
		return m, tea.Batch(next, fetchPage(m.api, page))

	case protocol.TypeUserCount:
		m.online = event.Count
		return m, next

	case protocol.TypeError:
		m.errText = event.Error
		return m, next
	}

	return m, next
}

func (m Model) View() string {
	switch m.state {
	case stateAuth:
		return m.viewAuth()
	default:
		return m.viewBoard()
	}
}

func (m Model) viewAuth() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("boardcast"))
	b.WriteString("\n\n")
	mode := "log in"
	if m.registering {
		mode = "register"
	}
	b.WriteString(StatusStyle.Render(fmt.Sprintf("%s @ %s  (ctrl+r to switch mode)", mode, m.addr)))
	b.WriteString("\n\n")
	b.WriteString("  " + m.usernameInput.View() + "\n")
	b.WriteString("  " + m.passwordInput.View() + "\n")
	if m.errText != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.errText))
	}
	b.WriteString("\n" + FooterStyle.Render("tab: switch field, enter: submit, ctrl+c: quit"))

	return b.String()
}

func (m Model) viewBoard() string {
	header := HeaderStyle.Render("boardcast")
	pageInfo := ""
	if m.page != nil {
		pageInfo = fmt.Sprintf("page %d/%d", m.page.Page, m.page.TotalPages)
	}
	status := StatusStyle.Render(fmt.Sprintf("%s  %d online  %s", pageInfo, m.online, m.status))
	top := lipgloss.JoinHorizontal(lipgloss.Top, header, status)

	footer := m.errText
	if footer != "" {
		footer = ErrorStyle.Render(footer)
	} else {
		footer = FooterStyle.Render("enter: post, ctrl+n/ctrl+p: page, pgup/pgdn: scroll, ctrl+c: quit")
	}

	body := "loading..."
	if m.ready {
		body = m.viewport.View()
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s", top, body, InputStyle.Render(m.compose.View()), footer)
}

type composeKind int

const (
	composeNone composeKind = iota
	composePost
	composePage
	composeRefresh
)

type composeAction struct {
	kind     composeKind
	page     int
	parentID *int64
	content  string
}

// parseCompose interprets the compose line: plain text posts a new thread,
// /reply posts under a message, /page and /refresh navigate.
func parseCompose(input string) (composeAction, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return composeAction{kind: composeNone}, nil
	}

	if !strings.HasPrefix(input, "/") {
		return composeAction{kind: composePost, content: input}, nil
	}

	command, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "/reply":
		idText, content, _ := strings.Cut(rest, " ")
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil {
			return composeAction{}, fmt.Errorf("usage: /reply <id> <text>")
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return composeAction{}, fmt.Errorf("usage: /reply <id> <text>")
		}
		return composeAction{kind: composePost, content: content, parentID: &id}, nil

	case "/page":
		page, err := strconv.Atoi(rest)
		if err != nil || page < 1 {
			return composeAction{}, fmt.Errorf("usage: /page <n>")
		}
		return composeAction{kind: composePage, page: page}, nil

	case "/refresh":
		return composeAction{kind: composeRefresh}, nil
	}

	return composeAction{}, fmt.Errorf("unknown command %s", command)
}

// renderPage formats one board page, indenting replies under their parents.
func renderPage(page *client.ThreadPage, width int) string {
	if len(page.Messages) == 0 {
		return StatusStyle.Render("no messages yet")
	}

	depths := make(map[int64]int, len(page.Messages))
	var b strings.Builder
	for i := range page.Messages {
		msg := &page.Messages[i]

		depth := 0
		if msg.ParentID != nil {
			// Parents always precede their replies in page order.
			depth = depths[*msg.ParentID] + 1
		}
		depths[msg.ID] = depth

		b.WriteString(renderMessage(msg, depth, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessage(msg *protocol.Message, depth, width int) string {
	indent := strings.Repeat("  ", depth)
	prefix := ""
	if depth > 0 {
		prefix = ReplyPrefixStyle.Render("└ ")
	}

	when := time.UnixMilli(msg.Timestamp).Format("Jan 2 15:04")
	header := fmt.Sprintf("%s%s%s %s %s",
		indent,
		prefix,
		AuthorStyle.Render(msg.AuthorName),
		TimestampStyle.Render(when),
		MessageIDStyle.Render(fmt.Sprintf("#%d", msg.ID)),
	)

	bodyIndent := indent + "  "
	body := bodyIndent + msg.Content
	if width > 0 {
		body = lipgloss.NewStyle().Width(width).Render(body)
	}

	return header + "\n" + body
}
