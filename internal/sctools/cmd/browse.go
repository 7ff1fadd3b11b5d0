package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"sctools/internal/analysis"
	"sctools/internal/asmtext"
	"sctools/internal/disasm"
	"sctools/internal/image"
	"sctools/internal/sctools/styles"
	"sctools/internal/ui/colorize"
)

type browseMode int

const (
	modeFunctions browseMode = iota
	modeListing
	modeSummary
)

var browseCmd = &cobra.Command{
	Use:   "browse <file>",
	Short: "Browse the functions of an image",
	Long: `Browse an image in the terminal: pick a function to read its listing, or
look at the summary and detector findings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal() {
			return errors.New("browse needs a terminal, use dis or info instead")
		}
		lenient := flagOr(cmd, "lenient", project.Disasm.Lenient)
		program := tea.NewProgram(
			newBrowseModel(args[0], project.Target, lenient),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

func init() {
	browseCmd.Flags().Bool("lenient", false, "Accept bytes that are not opcodes")
	rootCmd.AddCommand(browseCmd)
}

type functionItem struct {
	fn    *analysis.Function
	calls int
}

func (i functionItem) FilterValue() string { return i.fn.Name }

type functionDelegate struct{}

func (d functionDelegate) Height() int                               { return 1 }
func (d functionDelegate) Spacing() int                              { return 0 }
func (d functionDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

var (
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func (d functionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(functionItem)
	if !ok {
		return
	}
	indicator := " "
	if index == m.Index() {
		indicator = ">"
	}
	fmt.Fprintf(w, " %s  %s  %s  %s", indicator,
		colorize.Gutter(i.fn.Start, index == m.Index()),
		nameStyle.Render(i.fn.Name),
		countStyle.Render(fmt.Sprintf("%d bytes, %d blocks, %d calls", i.fn.End-i.fn.Start, len(i.fn.Blocks), i.calls)))
}

type programMsg struct {
	file     *image.File
	prog     *analysis.Program
	findings []analysis.Finding
	err      error
}

func loadProgramCmd(path, target string, lenient bool) tea.Cmd {
	return func() tea.Msg {
		f, p, err := loadProgram(path, target, lenient)
		if err != nil {
			return programMsg{err: err}
		}
		return programMsg{file: f, prog: p, findings: analysis.DefaultDetectors().Detect(p)}
	}
}

type browseModel struct {
	path    string
	target  string
	lenient bool

	functions list.Model
	listing   viewport.Model
	summary   viewport.Model
	spinner   spinner.Model
	mode      browseMode

	prog    *analysis.Program
	file    *image.File
	labels  map[int]string
	summMD  string
	err     error
	loading bool
	width   int
	height  int
}

func newBrowseModel(path, target string, lenient bool) browseModel {
	fl := list.New([]list.Item{}, functionDelegate{}, 80, 22)
	fl.SetShowStatusBar(false)
	fl.SetFilteringEnabled(true)
	fl.Title = filepath.Base(path)
	fl.Styles.Title = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).MarginLeft(2)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	lv := viewport.New()
	lv.SetWidth(80)
	lv.SetHeight(22)
	sv := viewport.New()
	sv.SetWidth(80)
	sv.SetHeight(22)

	return browseModel{
		path:      path,
		target:    target,
		lenient:   lenient,
		functions: fl,
		listing:   lv,
		summary:   sv,
		spinner:   s,
		loading:   true,
		width:     80,
		height:    24,
	}
}

func (m browseModel) Init() tea.Cmd {
	return tea.Batch(
		loadProgramCmd(m.path, m.target, m.lenient),
		m.spinner.Tick,
	)
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case programMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.mode = modeSummary
			m.summary.SetContent(fmt.Sprintf("\n  %v\n", msg.err))
			return m, nil
		}
		m.prog, m.file = msg.prog, msg.file
		m.labels = asmtext.Labels(m.prog)
		items := make([]list.Item, 0, len(m.prog.Functions))
		for _, fn := range m.prog.Functions {
			calls := 0
			for _, b := range fn.Blocks {
				calls += len(b.Calls)
			}
			items = append(items, functionItem{fn: fn, calls: calls})
		}
		cmd = m.functions.SetItems(items)
		m.summMD = summary(filepath.Base(m.path), m.file, m.prog, msg.findings)
		m.renderSummary()
		return m, cmd

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.functions.SetWidth(msg.Width)
		m.functions.SetHeight(msg.Height - 2)
		m.listing.SetWidth(msg.Width)
		m.listing.SetHeight(msg.Height - 2)
		m.summary.SetWidth(msg.Width)
		m.summary.SetHeight(msg.Height - 2)
		m.renderSummary()

	case tea.KeyMsg:
		filtering := m.mode == modeFunctions && m.functions.FilterState() == list.Filtering
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if !filtering {
				return m, tea.Quit
			}
		case "enter":
			if m.mode == modeFunctions && !filtering {
				if item, ok := m.functions.SelectedItem().(functionItem); ok {
					m.showFunction(item.fn)
				}
				return m, nil
			}
		case "esc":
			if m.mode == modeListing {
				m.mode = modeFunctions
				return m, nil
			}
		case "tab":
			if !filtering && m.prog != nil {
				m.mode = (m.mode + 1) % 3
				return m, nil
			}
		}
	}

	switch m.mode {
	case modeFunctions:
		m.functions, cmd = m.functions.Update(msg)
	case modeListing:
		m.listing, cmd = m.listing.Update(msg)
	default:
		m.summary, cmd = m.summary.Update(msg)
	}
	return m, cmd
}

func (m *browseModel) renderSummary() {
	if m.summMD == "" {
		return
	}
	m.summary.SetContent(styles.RenderMarkdown(m.summMD, max(m.width-2, 20)))
}

// showFunction switches to the listing of fn.
func (m *browseModel) showFunction(fn *analysis.Function) {
	m.listing.SetContent(functionListing(m.prog, fn, m.labels))
	m.listing.GotoTop()
	m.mode = modeListing
}

var labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))

func functionListing(p *analysis.Program, fn *analysis.Function, labels map[int]string) string {
	namer := func(addr int) string {
		if n, ok := labels[addr]; ok {
			return n
		}
		return disasm.LabelName(addr)
	}
	var sb strings.Builder
	for _, in := range p.Instructions(fn.Start, fn.End) {
		if n, ok := labels[in.Addr]; ok {
			sb.WriteString(labelStyle.Render(n + ":"))
			sb.WriteByte('\n')
		}
		sb.WriteString(colorize.Gutter(in.Addr, false))
		sb.WriteString("    ")
		sb.WriteString(colorize.Line(disasm.Format(in, namer)))
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m browseModel) View() string {
	var content, menu string
	switch {
	case m.loading:
		content = fmt.Sprintf("\n  %s Analyzing %s...", m.spinner.View(), filepath.Base(m.path))
		menu = " Q: quit "
	case m.mode == modeFunctions:
		content = m.functions.View()
		menu = " Enter: listing • /: filter • Tab: cycle • Q: quit "
	case m.mode == modeListing:
		content = m.listing.View()
		menu = " Esc: functions • Tab: cycle • Q: quit "
	default:
		content = m.summary.View()
		menu = " Tab: cycle • Q: quit "
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)
	return content + "\n" + menuStyle.Render(menu)
}
