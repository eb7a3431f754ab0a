// Package tui is the interactive terminal front end for a session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/content"
	"github.com/eargollo/reclaim/internal/deletion"
	"github.com/eargollo/reclaim/internal/events"
	"github.com/eargollo/reclaim/internal/media"
	"github.com/eargollo/reclaim/internal/selection"
	"github.com/eargollo/reclaim/internal/session"
)

type rowData struct {
	Group    media.ContentGroup
	Variant  media.MediaVariant
	Keep     bool
	Selected bool
	Deleted  bool
}

func buildRows(groups []media.ContentGroup, snap selection.Snapshot) []rowData {
	var rows []rowData
	for _, g := range groups {
		keep, _ := selection.Keeper(g)
		for _, v := range g.Media {
			rows = append(rows, rowData{
				Group:    g,
				Variant:  v,
				Keep:     v.ID == keep.ID,
				Selected: snap.Selected(v.ID),
				Deleted:  snap.Deleted(v.ID),
			})
		}
	}
	return rows
}

type confirmAction int

const (
	confirmNone confirmAction = iota
	confirmDeleteOne
	confirmDeleteSelected
)

type confirmState struct {
	active bool
	action confirmAction
	row    rowData
}

type changedMsg struct{}

type refreshDoneMsg struct {
	Mode content.Mode
	Err  error
}

type deleteOneMsg struct {
	Row rowData
	Err error
}

type batchDoneMsg struct {
	Result deletion.BatchResult
	Err    error
}

type ignoreDoneMsg struct {
	Title   string
	Ignored bool
	Err     error
}

// Model is the bubbletea model. Session state is the source of truth; the
// table is rebuilt from it whenever the bus reports a change.
type Model struct {
	sess    *session.Session
	ctx     context.Context
	cancel  context.CancelFunc
	changes <-chan struct{}

	table     table.Model
	spinner   spinner.Model
	help      help.Model
	keys      keyMap
	rows      []rowData
	mode      content.Mode
	confirm   confirmState
	lastEvent string
	deleting  bool
	width     int
	height    int
}

// NewModel creates the model. changes delivers a value after any session
// change; see Subscribe.
func NewModel(ctx context.Context, sess *session.Session, mode content.Mode, changes <-chan struct{}) Model {
	ctx, cancel := context.WithCancel(ctx)

	t := table.New(
		table.WithColumns(columns(100)),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("238")).
		BorderBottom(true).
		Bold(true)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)
	t.SetStyles(st)
	// Free space, d, f, g and u for the actions below.
	t.KeyMap.PageDown = key.NewBinding(key.WithKeys("pgdown"))
	t.KeyMap.PageUp = key.NewBinding(key.WithKeys("pgup"))
	t.KeyMap.HalfPageDown = key.NewBinding(key.WithKeys("ctrl+d"))
	t.KeyMap.HalfPageUp = key.NewBinding(key.WithKeys("ctrl+u"))
	t.KeyMap.GotoTop = key.NewBinding(key.WithKeys("home"))
	t.KeyMap.GotoBottom = key.NewBinding(key.WithKeys("end"))

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	return Model{
		sess:    sess,
		ctx:     ctx,
		cancel:  cancel,
		changes: changes,
		table:   t,
		spinner: sp,
		help:    help.New(),
		keys:    newKeyMap(),
		mode:    mode,
	}
}

// Subscribe returns a channel that receives a value, coalesced, after every
// content, selection or ledger change on bus. The returned function stops it.
func Subscribe(bus *events.Bus) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	notify := func(events.Event) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	unsubs := []func(){
		bus.Subscribe(events.TopicContent, notify),
		bus.Subscribe(events.TopicSelection, notify),
		bus.Subscribe(events.TopicLedger, notify),
	}
	return ch, func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Run starts the interactive program and blocks until the user quits.
func Run(ctx context.Context, sess *session.Session, mode content.Mode) error {
	changes, stop := Subscribe(sess.Bus())
	defer stop()
	p := tea.NewProgram(NewModel(ctx, sess, mode, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func columns(width int) []table.Column {
	sizeWidth, resWidth, libWidth, statusWidth := 10, 18, 12, 9
	titleWidth := max(width-sizeWidth-resWidth-libWidth-statusWidth-12, 20)
	return []table.Column{
		{Title: "Title", Width: titleWidth},
		{Title: "Library", Width: libWidth},
		{Title: "Variant", Width: resWidth},
		{Title: "Size", Width: sizeWidth},
		{Title: "Status", Width: statusWidth},
	}
}

func waitChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func refreshCmd(ctx context.Context, sess *session.Session, mode content.Mode) tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{Mode: mode, Err: sess.Refresh(ctx, mode)}
	}
}

func deleteOneCmd(ctx context.Context, sess *session.Session, row rowData) tea.Cmd {
	return func() tea.Msg {
		return deleteOneMsg{Row: row, Err: sess.DeleteOne(ctx, row.Variant.ID)}
	}
}

func deleteSelectedCmd(ctx context.Context, sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		res, err := sess.DeleteSelected(ctx)
		return batchDoneMsg{Result: res, Err: err}
	}
}

func ignoreCmd(ctx context.Context, sess *session.Session, g media.ContentGroup) tea.Cmd {
	return func() tea.Msg {
		var err error
		if g.Ignored {
			err = sess.Unignore(ctx, g.Key)
		} else {
			err = sess.Ignore(ctx, g.Key)
		}
		return ignoreDoneMsg{Title: g.DisplayTitle(), Ignored: !g.Ignored, Err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refreshCmd(m.ctx, m.sess, m.mode), waitChange(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.updateLayout(msg.Width, msg.Height)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case changedMsg:
		m.syncRows()
		cmds = append(cmds, waitChange(m.changes))
	case refreshDoneMsg:
		m.syncRows()
		if msg.Err != nil {
			m.lastEvent = fmt.Sprintf("Loading %s failed: %s", msg.Mode, errorText(msg.Err))
		} else {
			m.lastEvent = fmt.Sprintf("Loaded %d %s group(s)", m.sess.Content().Len(), msg.Mode)
		}
	case deleteOneMsg:
		m.syncRows()
		if msg.Err != nil {
			m.lastEvent = fmt.Sprintf("Delete failed: %s", errorText(msg.Err))
		} else {
			m.lastEvent = fmt.Sprintf("Deleted %s (%s)", msg.Row.Group.DisplayTitle(), humanize.Bytes(uint64(msg.Row.Variant.TotalSize())))
		}
	case batchDoneMsg:
		m.deleting = false
		m.syncRows()
		switch {
		case msg.Err != nil:
			m.lastEvent = fmt.Sprintf("Delete failed: %s", errorText(msg.Err))
		case len(msg.Result.Failed) > 0:
			m.lastEvent = fmt.Sprintf("Deleted %d item(s), %d failed: %s",
				len(msg.Result.Deleted), len(msg.Result.Failed), deletion.FailureMessage(msg.Result.Failed[0]))
		default:
			m.lastEvent = fmt.Sprintf("Deleted %d item(s), reclaimed %s", len(msg.Result.Deleted), humanize.Bytes(uint64(msg.Result.Bytes)))
		}
	case ignoreDoneMsg:
		switch {
		case msg.Err != nil:
			m.lastEvent = fmt.Sprintf("Ignore failed: %s", errorText(msg.Err))
		case msg.Ignored:
			m.lastEvent = fmt.Sprintf("Ignored %s", msg.Title)
		default:
			m.lastEvent = fmt.Sprintf("Unignored %s", msg.Title)
		}
	case tea.KeyMsg:
		if m.confirm.active {
			switch msg.String() {
			case "y", "Y":
				c := m.confirm
				m.confirm = confirmState{}
				if cmd := m.startDelete(c); cmd != nil {
					cmds = append(cmds, cmd)
				}
			case "n", "N", "esc":
				m.confirm = confirmState{}
				m.lastEvent = "Deletion cancelled"
			}
			return m, tea.Batch(cmds...)
		}
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	if !m.confirm.active {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return nil, true
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Toggle):
		row, ok := m.current()
		if !ok {
			break
		}
		selected, err := m.sess.Toggle(row.Variant.ID)
		switch {
		case err != nil:
			m.lastEvent = errorText(err)
		case selected:
			m.lastEvent = "Marked for deletion"
		default:
			m.lastEvent = "Unmarked"
		}
	case key.Matches(msg, m.keys.Invert):
		m.sess.Invert()
		m.lastEvent = "Selection inverted"
	case key.Matches(msg, m.keys.Reset):
		m.sess.ResetSelection()
		m.lastEvent = "Default selection applied"
	case key.Matches(msg, m.keys.DeselectAll):
		m.sess.DeselectAll()
		m.lastEvent = "Selection cleared"
	case key.Matches(msg, m.keys.Delete):
		row, ok := m.current()
		if !ok || row.Deleted {
			break
		}
		m.confirm = confirmState{active: true, action: confirmDeleteOne, row: row}
	case key.Matches(msg, m.keys.DeleteSelected):
		if m.deleting {
			m.lastEvent = "A delete is already running"
			break
		}
		if m.sess.PendingDelete().Count == 0 {
			m.lastEvent = "Nothing selected"
			break
		}
		m.confirm = confirmState{active: true, action: confirmDeleteSelected}
	case key.Matches(msg, m.keys.Ignore):
		row, ok := m.current()
		if !ok {
			break
		}
		return ignoreCmd(m.ctx, m.sess, row.Group), false
	case key.Matches(msg, m.keys.IncludeIgnored):
		include := !m.sess.Content().State().IncludeIgnored
		m.sess.SetIncludeIgnored(include)
		m.lastEvent = fmt.Sprintf("Show ignored: %s", onOff(include))
	case key.Matches(msg, m.keys.Mode):
		if m.mode == content.ModeDuplicate {
			m.mode = content.ModeSample
		} else {
			m.mode = content.ModeDuplicate
		}
		m.lastEvent = fmt.Sprintf("Loading %s…", m.mode)
		return refreshCmd(m.ctx, m.sess, m.mode), false
	case key.Matches(msg, m.keys.Refresh):
		m.lastEvent = "Refreshing…"
		return refreshCmd(m.ctx, m.sess, m.mode), false
	}
	return nil, false
}

func (m *Model) startDelete(c confirmState) tea.Cmd {
	switch c.action {
	case confirmDeleteOne:
		m.lastEvent = fmt.Sprintf("Deleting %s…", c.row.Group.DisplayTitle())
		return deleteOneCmd(m.ctx, m.sess, c.row)
	case confirmDeleteSelected:
		m.deleting = true
		m.lastEvent = fmt.Sprintf("Deleting %d item(s)…", m.sess.PendingDelete().Count)
		return deleteSelectedCmd(m.ctx, m.sess)
	}
	return nil
}

func (m Model) current() (rowData, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rows) {
		return rowData{}, false
	}
	return m.rows[idx], true
}

func (m *Model) syncRows() {
	m.rows = buildRows(m.sess.Content().ActiveItems(), m.sess.Selection().Snapshot())
	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		title := r.Group.DisplayTitle()
		if r.Group.Ignored {
			title += " [ignored]"
		}
		rows = append(rows, table.Row{
			title,
			r.Group.Library,
			variantLabel(r.Variant),
			humanize.Bytes(uint64(r.Variant.TotalSize())),
			statusLabel(r),
		})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func variantLabel(v media.MediaVariant) string {
	parts := []string{v.Resolution()}
	if v.VideoCodec != "" {
		parts = append(parts, v.VideoCodec)
	}
	if v.Container != "" {
		parts = append(parts, v.Container)
	}
	return strings.Join(parts, " ")
}

func statusLabel(r rowData) string {
	switch {
	case r.Deleted:
		return ui.muted.Render("deleted")
	case r.Selected:
		return ui.danger.Render("delete")
	case r.Keep:
		return ui.accent.Render("keep")
	default:
		return ""
	}
}

func errorText(err error) string {
	if msg := backend.ErrorMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (m *Model) updateLayout(width, height int) {
	if width < 60 {
		width = 60
	}
	if height < 12 {
		height = 12
	}
	if m.width == width && m.height == height {
		return
	}
	m.width, m.height = width, height
	m.table.SetColumns(columns(width))

	headerHeight := lipgloss.Height(m.headerView())
	statusHeight := lipgloss.Height(m.statusView())
	footerHeight := lipgloss.Height(m.footerView())
	m.table.SetHeight(max(height-headerHeight-statusHeight-footerHeight-4, 5))
	m.table.SetWidth(width - 4)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}
	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.headerView(),
		ui.base.Render(m.table.View()),
		m.statusView(),
		m.footerView(),
	)
	return ui.container.Render(view)
}

func (m Model) headerView() string {
	title := ui.title.Render("reclaim")
	name := "media server"
	if info, ok := m.sess.ServerInfo().Info(); ok && info.Name != "" {
		name = info.Name
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left, title, " ", ui.chip.Render(string(m.mode)))
	reclaimed := ui.muted.Render(fmt.Sprintf("Reclaimed so far: %s", humanize.Bytes(uint64(m.sess.ServerInfo().TotalDeleted()))))
	return ui.header.Render(lipgloss.JoinVertical(lipgloss.Left, line,
		lipgloss.JoinHorizontal(lipgloss.Left, ui.subtitle.Render(name), " · ", reclaimed)))
}

func (m Model) statusView() string {
	sum := m.sess.Summary()
	if sum.Loading {
		return ui.status.Render(fmt.Sprintf("%s Loading %s content…", m.spinner.View(), sum.Mode))
	}
	if sum.LoadingFailed {
		msg := sum.LoadingError
		if msg == "" {
			msg = "could not load content"
		}
		return ui.danger.Render("Error: " + msg)
	}
	parts := []string{
		fmt.Sprintf("Groups: %d", sum.Groups),
		fmt.Sprintf("Selected: %d (%s)", sum.Selected, humanize.Bytes(uint64(sum.SelectedBytes))),
		fmt.Sprintf("Deleted: %d (%s)", sum.Deleted, humanize.Bytes(uint64(sum.DeletedBytes))),
		fmt.Sprintf("Ignored: %d", sum.IgnoredGroups),
		fmt.Sprintf("Show ignored: %s", onOff(sum.IncludeIgnored)),
	}
	lines := []string{ui.status.Render(strings.Join(parts, " · "))}
	if m.deleting {
		p := sum.Progress
		line := fmt.Sprintf("%s Deleting %d/%d", m.spinner.View(), p.Settled(), p.Requested)
		if p.Failed > 0 {
			line += ui.warning.Render(fmt.Sprintf(" · %d failed", p.Failed))
		}
		lines = append(lines, ui.muted.Render(line))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) footerView() string {
	if m.confirm.active {
		var label string
		if m.confirm.action == confirmDeleteSelected {
			p := m.sess.PendingDelete()
			label = fmt.Sprintf("Delete %d selected item(s), %s? (y/n)", p.Count, humanize.Bytes(uint64(p.Bytes)))
		} else {
			label = fmt.Sprintf("Delete %s %s? (y/n)", m.confirm.row.Group.DisplayTitle(), variantLabel(m.confirm.row.Variant))
		}
		return ui.confirm.Render(label)
	}
	if m.lastEvent != "" {
		return lipgloss.JoinVertical(lipgloss.Left, ui.muted.Render(m.lastEvent), m.help.View(m.keys))
	}
	return m.help.View(m.keys)
}
