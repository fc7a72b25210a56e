package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/pkg/engine"
	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/textfilter"
)

const (
	PlaceHolderText = "Enter for the next turn, /help for commands"
	MovePlaceholder = "Type %s's move and press Enter..."
)

var errNoConsole = errors.New("console is not running")

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	ctx    context.Context
	app    *app.App
	resume uuid.UUID

	eng        *engine.Engine
	cancelTurn context.CancelFunc
	stepping   bool
	pending    *humanPromptMsg
	autoPlay   bool

	entries   []string // transcript blocks, rendered at the current width
	turns     []state.TurnRecord
	scorecard string // raw markup
	status    string

	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error

	// Scenario selection state
	showScenarioModal bool
	scenarios         []string
	scenarioMap       map[string]string
	selectedScenario  int
	loadingScenarios  bool
	creating          bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type scenariosLoadedMsg struct {
	scenarios   []string
	scenarioMap map[string]string
	err         error
}

type gameReadyMsg struct {
	eng *engine.Engine
	err error
}

type turnMsg struct {
	rec state.TurnRecord
	err error
}

type copiedMsg struct{ err error }

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(ctx context.Context, a *app.App, resume uuid.UUID) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 2000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		ctx:               ctx,
		app:               a,
		resume:            resume,
		autoPlay:          !a.Config.Engine.StepThroughTurns,
		textarea:          ta,
		chatViewport:      chatVp,
		metaViewport:      metaVp,
		showScenarioModal: resume == uuid.Nil,
		loadingScenarios:  resume == uuid.Nil,
		creating:          resume != uuid.Nil,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.resume != uuid.Nil {
		return m.resumeGame()
	}
	return m.loadScenarios()
}

func (m *ConsoleUI) layout() (chatWidth, metaWidth int) {
	chatWidth = int(float64(m.width)*0.65) - 4
	metaWidth = m.width - chatWidth - 6
	return chatWidth, metaWidth
}

func (m *ConsoleUI) resize() {
	chatWidth, metaWidth := m.layout()
	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m *ConsoleUI) textWidth() int {
	return m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
}

// writeChatContent rebuilds the transcript for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	width := m.textWidth()
	var content strings.Builder

	content.WriteString(titleStyle.Render("LAISSEZ FAIRE") + "\n\n")
	if m.eng != nil {
		scn := m.eng.Scenario()
		content.WriteString(wordwrap.String(scn.Description, width) + "\n\n")
	}
	if width > 6 {
		content.WriteString(separatorStyle.Render(strings.Repeat("─", width-6)) + "\n\n")
	}

	for _, rec := range m.turns {
		content.WriteString(formatTurn(rec, width))
	}
	for _, e := range m.entries {
		content.WriteString(e)
	}

	if m.pending != nil {
		p := m.pending
		content.WriteString(titleStyle.Render(fmt.Sprintf("Your move, %s (%s)", p.player.Name, p.player.Controls)) + "\n\n")
		content.WriteString(promptStyle.Render(wordwrap.String(p.prompt.User, width)) + "\n\n")
	} else if m.stepping {
		content.WriteString(loadingStyle.Render(fmt.Sprintf("Playing turn %d...", m.eng.Turn()+1)) + "\n")
		content.WriteString(m.renderProgressBar() + "\n")
	}
	if m.status != "" {
		content.WriteString(promptStyle.Render(m.status) + "\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) refreshMeta() {
	if m.eng == nil {
		return
	}
	if card, err := m.eng.Scorecard(); err != nil {
		m.scorecard = "(scorecard unavailable: " + err.Error() + ")"
	} else {
		m.scorecard = card.String()
	}
	m.metaViewport.SetContent(writeMetadata(m.eng, wordwrap.String(renderMarkup(m.scorecard), m.metaViewport.Width)))
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Human prompts can arrive while a modal is up; hold them.
	if hp, ok := msg.(humanPromptMsg); ok {
		m.pending = &hp
		m.status = ""
		m.textarea.Placeholder = fmt.Sprintf(MovePlaceholder, hp.player.Name)
		m.textarea.Focus()
		m.writeChatContent()
		return m, textarea.Blink
	}

	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}

	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		if m.eng != nil {
			m.ready = true
			m.writeChatContent()
			m.refreshMeta()
		}

	case gameReadyMsg:
		return m.startGame(msg)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			return m.handleEnter()
		case tea.KeyRunes:
			if string(msg.Runes) == "c" && m.pending == nil && m.textarea.Value() == "" {
				return m, m.copyScorecard()
			}
		}

	case turnMsg:
		return m.finishTurn(msg)

	case copiedMsg:
		if msg.err != nil {
			m.status = "Copy failed: " + msg.err.Error()
		} else {
			m.status = "Scorecard copied to clipboard."
		}
		m.writeChatContent()
		return m, nil

	case progressTickMsg:
		if m.stepping {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
		return m, nil
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m ConsoleUI) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())

	if m.pending != nil {
		if input == "" {
			return m, nil
		}
		m.pending.reply <- input
		m.pending = nil
		m.textarea.Reset()
		m.textarea.Placeholder = PlaceHolderText
		m.status = ""
		m.writeChatContent()
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}
	m.textarea.Reset()

	if m.stepping || m.eng == nil {
		return m, nil
	}
	if ended, _ := m.eng.Ended(); ended {
		m.status = "The game is over. Ctrl+C to quit."
		m.writeChatContent()
		return m, nil
	}
	return m.startStep()
}

func (m ConsoleUI) startStep() (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelTurn = cancel
	m.stepping = true
	m.status = ""
	m.progressTick = 0
	m.writeChatContent()

	eng := m.eng
	step := func() tea.Msg {
		defer cancel()
		rec, err := eng.Step(ctx)
		return turnMsg{rec: rec, err: err}
	}
	return m, tea.Batch(step, progressTick())
}

func (m ConsoleUI) finishTurn(msg turnMsg) (tea.Model, tea.Cmd) {
	m.stepping = false
	m.cancelTurn = nil
	m.pending = nil

	switch {
	case errors.Is(msg.err, engine.ErrGameEnded):
	case errors.Is(msg.err, context.Canceled):
		m.status = "Turn cancelled; nothing was committed."
	case msg.err != nil:
		m.err = msg.err
		m.entries = append(m.entries, errorStyle.Render("Error: "+msg.err.Error())+"\n\n")
	default:
		m.turns = append(m.turns, msg.rec)
	}
	m.refreshMeta()

	if ended, reason := m.eng.Ended(); ended {
		m.entries = append(m.entries, titleStyle.Render(fmt.Sprintf("Game over after turn %d: %s", m.eng.Turn(), reason))+"\n\n")
		m.writeChatContent()
		return m, nil
	}
	if m.autoPlay && msg.err == nil {
		return m.startStep()
	}
	if m.status == "" {
		m.status = fmt.Sprintf("Press Enter to play turn %d.", m.eng.Turn()+1)
	}
	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) startGame(msg gameReadyMsg) (tea.Model, tea.Cmd) {
	m.creating = false
	if msg.err != nil {
		m.err = msg.err
		m.showScenarioModal = true
		return m, nil
	}
	m.eng = msg.eng
	m.showScenarioModal = false
	m.turns = m.eng.History()
	m.textarea.Focus()
	if m.width > 0 && m.height > 0 {
		m.resize()
		m.ready = true
	}
	m.refreshMeta()

	if ended, _ := m.eng.Ended(); ended {
		m.status = "This game has ended."
		m.writeChatContent()
		return m, textarea.Blink
	}
	if m.autoPlay {
		model, cmd := m.startStep()
		return model, tea.Batch(cmd, textarea.Blink)
	}
	m.status = fmt.Sprintf("Press Enter to play turn %d.", m.eng.Turn()+1)
	m.writeChatContent()
	return m, textarea.Blink
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()

	switch cmd {
	case "/help":
		helpText := `
Commands:
• Enter - Play the next turn (or send a move when asked)
• c - Copy the scorecard to the clipboard
• /auto - Toggle playing turns without waiting
• /stop - End the game after the current turn
• Ctrl+C - Quit

How to play:
• AI players move on their own each turn
• When a human player is up, their prompt appears here
• A judge scores every country after all moves are in
`
		m.entries = append(m.entries, titleStyle.Render("Help:")+helpText+"\n")

	case "/auto":
		m.autoPlay = !m.autoPlay
		if m.autoPlay {
			m.status = "Auto-play on."
			if !m.stepping && m.eng != nil {
				if ended, _ := m.eng.Ended(); !ended {
					return m.startStep()
				}
			}
		} else {
			m.status = "Auto-play off; press Enter for each turn."
		}

	case "/stop":
		if m.eng != nil {
			m.eng.Stop()
			m.autoPlay = false
			m.status = "Stopping."
			m.refreshMeta()
			if ended, reason := m.eng.Ended(); ended && !m.stepping {
				m.entries = append(m.entries, titleStyle.Render("Game over: "+reason)+"\n\n")
			}
		}

	case "/copy":
		return m, m.copyScorecard()

	default:
		m.status = "Unknown command " + cmd
	}

	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) copyScorecard() tea.Cmd {
	text := textfilter.Strip(m.scorecard)
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(text)}
	}
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		list, err := m.app.Scenarios(m.ctx)
		if err != nil {
			return scenariosLoadedMsg{err: err}
		}
		names := make([]string, 0, len(list))
		for name := range list {
			names = append(names, name)
		}
		sort.Strings(names)
		return scenariosLoadedMsg{names, list, nil}
	}
}

func (m ConsoleUI) createGame(file string) tea.Cmd {
	return func() tea.Msg {
		scn, err := m.app.LoadScenario(m.ctx, file)
		if err != nil {
			return gameReadyMsg{err: err}
		}
		eng, err := m.app.NewGame(m.ctx, scn, 0)
		return gameReadyMsg{eng, err}
	}
}

func (m ConsoleUI) resumeGame() tea.Cmd {
	return func() tea.Msg {
		eng, err := m.app.ResumeGame(m.ctx, m.resume, 0)
		return gameReadyMsg{eng, err}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
			m.scenarioMap = msg.scenarioMap
		}

	case gameReadyMsg:
		return m.startGame(msg)

	case tea.KeyMsg:
		if m.loadingScenarios || m.creating {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			m.showScenarioModal = false
			return m, nil
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if len(m.scenarios) > 0 && m.err == nil {
				name := m.scenarios[m.selectedScenario]
				m.creating = true
				return m, m.createGame(m.scenarioMap[name])
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				if m.eng == nil {
					m.showScenarioModal = true
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.cancelTurn != nil {
		m.cancelTurn()
	}
	return m, tea.Quit
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	if m.eng != nil {
		content.WriteString("Committed turns are saved. A turn in progress is discarded.")
	} else {
		content.WriteString("Are you sure you want to quit?")
	}
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we read the scenario files..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(wordwrap.String(m.err.Error(), 50)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.creating:
		content.WriteString(modalTitleStyle.Render("Starting Game..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Setting up the world..."))
	case len(m.scenarios) == 0:
		content.WriteString(modalTitleStyle.Render("No Scenarios"))
		content.WriteString("\n\n")
		content.WriteString("Add scenario files under " + m.app.Config.DataDir + "/scenarios")
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")

		for i, name := range m.scenarios {
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", name)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", name)))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showScenarioModal || m.eng == nil {
		return m.renderScenarioModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth, metaWidth := m.layout()

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 0))),
			userStyle.Render(m.textarea.View()),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
