package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/postview/internal/collection"
	"github.com/tOgg1/postview/internal/models"
	"github.com/tOgg1/postview/internal/popup"
)

var browseFocus int64

func init() {
	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().Int64Var(&browseFocus, "focus", 0, "post number to start on")
}

var browseCmd = &cobra.Command{
	Use:   "browse [/board/[thread]]",
	Short: "Browse a thread interactively",
	Long: `Browse a stored thread in the terminal.

Keys: j/k move, r replies to the selected post, enter opens the first
post it quotes, esc goes back in the popup, q quits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !hasTTY() {
			return fmt.Errorf("browse requires an interactive terminal; use 'postview show' instead")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		chanDescriptor, err := resolveChan(args)
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		focus := focusFor(chanDescriptor, browseFocus)
		view, err := loadChan(ctx, a, chanDescriptor, focus)
		if err != nil {
			return err
		}

		key := popup.NewViewerKey()
		defer a.viewers.Dispose(key)
		model := newBrowseModel(ctx, view, a.viewers.GetOrCreate(key, chanDescriptor), focus)

		_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type batchMsg struct {
	snap collection.Snapshot
}

type popupMsg struct {
	open bool
	mode popup.ViewMode
	snap collection.Snapshot
	err  error
}

type browseModel struct {
	ctx    context.Context
	view   *chanView
	viewer *popup.Controller

	slots  []*models.RenderReadyCell
	cells  []models.RenderReadyCell
	loaded bool
	cursor int

	popupOpen   bool
	popupMode   popup.ViewMode
	popupCells  []models.RenderReadyCell
	popupCursor int

	err    error
	width  int
	height int
}

func newBrowseModel(ctx context.Context, view *chanView, viewer *popup.Controller, focus *models.PostDescriptor) *browseModel {
	m := &browseModel{ctx: ctx, view: view, viewer: viewer, slots: view.initial, width: 100, height: 40}
	if focus != nil {
		if idx := models.IndexOf(view.records, *focus); idx >= 0 {
			m.cursor = idx
		}
	}
	return m
}

func (m *browseModel) Init() tea.Cmd {
	view, ctx := m.view, m.ctx
	return func() tea.Msg {
		_ = view.Wait(ctx)
		return batchMsg{snap: view.state.Snapshot()}
	}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case batchMsg:
		if msg.snap.Status == collection.StatusError {
			m.err = msg.snap.Err
			return m, nil
		}
		selected, hadSelection := m.selected()
		m.cells = msg.snap.Cells
		m.loaded = true
		m.cursor = 0
		if hadSelection {
			for i, c := range m.cells {
				if c.Descriptor() == selected {
					m.cursor = i
					break
				}
			}
		}
		return m, nil

	case popupMsg:
		m.err = msg.err
		m.popupOpen = msg.open
		m.popupMode = msg.mode
		m.popupCells = msg.snap.Cells
		m.popupCursor = 0
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *browseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "j", "down":
		m.move(1)
	case "k", "up":
		m.move(-1)
	case "esc", "backspace":
		if m.popupOpen {
			return m, m.back()
		}
	case "r":
		if desc, ok := m.selected(); ok {
			return m, m.navigate(popup.RepliesFrom{Target: desc})
		}
	case "enter":
		if cell, ok := m.selectedCell(); ok && len(cell.Quotes) > 0 {
			return m, m.navigate(popup.ReplyTo{Target: cell.Quotes[0]})
		}
	}
	return m, nil
}

func (m *browseModel) move(delta int) {
	if m.popupOpen {
		m.popupCursor = clamp(m.popupCursor+delta, len(m.popupCells))
		return
	}
	m.cursor = clamp(m.cursor+delta, m.listLen())
}

func clamp(v, n int) int {
	if n == 0 {
		return 0
	}
	return min(max(v, 0), n-1)
}

func (m *browseModel) listLen() int {
	if m.loaded {
		return len(m.cells)
	}
	return len(m.slots)
}

func (m *browseModel) selectedCell() (models.RenderReadyCell, bool) {
	if m.popupOpen {
		if m.popupCursor < len(m.popupCells) {
			return m.popupCells[m.popupCursor], true
		}
		return models.RenderReadyCell{}, false
	}
	if m.loaded {
		if m.cursor < len(m.cells) {
			return m.cells[m.cursor], true
		}
		return models.RenderReadyCell{}, false
	}
	if m.cursor < len(m.slots) && m.slots[m.cursor] != nil {
		return *m.slots[m.cursor], true
	}
	return models.RenderReadyCell{}, false
}

func (m *browseModel) selected() (models.PostDescriptor, bool) {
	if cell, ok := m.selectedCell(); ok {
		return cell.Descriptor(), true
	}
	if !m.popupOpen && !m.loaded && m.cursor < len(m.view.records) {
		return m.view.records[m.cursor].Descriptor, true
	}
	return models.PostDescriptor{}, false
}

func (m *browseModel) navigate(mode popup.ViewMode) tea.Cmd {
	ctx, viewer, open := m.ctx, m.viewer, m.popupOpen
	return func() tea.Msg {
		var err error
		if open {
			err = viewer.Navigate(ctx, mode)
		} else {
			err = viewer.OpenInitial(ctx, mode)
		}
		current, _ := viewer.Current()
		return popupMsg{open: true, mode: current, snap: viewer.State().Snapshot(), err: err}
	}
}

func (m *browseModel) back() tea.Cmd {
	ctx, viewer := m.ctx, m.viewer
	return func() tea.Msg {
		revealed, err := viewer.Back(ctx)
		current, _ := viewer.Current()
		return popupMsg{open: revealed, mode: current, snap: viewer.State().Snapshot(), err: err}
	}
}

func (m *browseModel) View() string {
	status := "parsing…"
	if m.loaded {
		status = fmt.Sprintf("%d posts", len(m.cells))
	}
	header := headerStyle.Render(m.view.chanDescriptor.String()) + " " + mutedStyle.Render(status)
	if m.err != nil {
		header += " " + quoteStyle.Render(m.err.Error())
	}

	bodyHeight := max(m.height-2, 1)
	var body string
	if m.popupOpen {
		body = m.renderPopup(bodyHeight)
	} else {
		body = m.renderList(bodyHeight)
	}
	footer := mutedStyle.Render("j/k move · r replies · enter quote · esc back · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *browseModel) renderList(height int) string {
	var blocks []string
	for i := m.cursor; i < m.listLen(); i++ {
		var block string
		switch {
		case m.loaded:
			block = formatCell(m.cells[i], m.width)
		case m.slots[i] != nil:
			block = formatCell(*m.slots[i], m.width)
		default:
			block = formatPlaceholder(m.view.records[i].Descriptor)
		}
		if i == m.cursor {
			block = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Render(block)
		}
		blocks = append(blocks, block)
		if lipgloss.Height(strings.Join(blocks, "\n\n")) >= height {
			break
		}
	}
	return clipLines(strings.Join(blocks, "\n\n"), height)
}

func (m *browseModel) renderPopup(height int) string {
	title := ""
	if m.popupMode != nil {
		title = m.popupMode.String()
	}
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("11")).Width(max(m.width-4, 10))

	var content string
	if len(m.popupCells) == 0 {
		content = mutedStyle.Render("no posts")
	} else {
		parts := make([]string, 0, len(m.popupCells)-m.popupCursor)
		for _, cell := range m.popupCells[m.popupCursor:] {
			parts = append(parts, formatCell(cell, m.width-6))
		}
		content = strings.Join(parts, "\n\n")
	}
	inner := mutedStyle.Render(fmt.Sprintf("%s (depth %d)", title, m.viewer.Depth())) + "\n" + clipLines(content, max(height-4, 1))
	return box.Render(inner)
}

func clipLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}
