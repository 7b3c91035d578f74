package tui

import (
	"fmt"
	"strings"

	"micscope/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

var (
	quitKeys   = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))
	upKeys     = key.NewBinding(key.WithKeys("up", "k"))
	downKeys   = key.NewBinding(key.WithKeys("down", "j"))
	selectKeys = key.NewBinding(key.WithKeys("enter"))
)

// DeviceListModel is the Bubble Tea model for browsing capture devices.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device // Input-capable devices only
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error

	chosen   bool
	deviceID int
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model that loads devices with fetch.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{fetch: fetch}
}

// Init starts loading the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Update handles input and updates the model.
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		var inputs []audio.Device
		for _, d := range msg.devices {
			if d.MaxInputChannels > 0 {
				inputs = append(inputs, d)
			}
		}
		m.devices = inputs
		for i, d := range m.devices {
			if d.IsDefaultInput {
				m.selectedIndex = i
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKeys):
			return m, tea.Quit

		case key.Matches(msg, upKeys):
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.refresh()
			}

		case key.Matches(msg, downKeys):
			if m.selectedIndex < len(m.devices)-1 {
				m.selectedIndex++
				m.refresh()
			}

		case key.Matches(msg, selectKeys):
			if len(m.devices) > 0 {
				m.chosen = true
				m.deviceID = m.devices[m.selectedIndex].ID
				return m, tea.Quit
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("Input Devices")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		marker := " "
		if device.IsDefaultInput {
			marker = "*"
		}
		header := fmt.Sprintf("%s[%d] %s (%s)", marker, device.ID, device.Name, device.Kind())
		details := dimStyle.Render(fmt.Sprintf("    %s, %d in / %d out, %.0f Hz",
			device.HostAPI, device.MaxInputChannels, device.MaxOutputChannels, device.DefaultSampleRate))

		if i == m.selectedIndex {
			header = highlightStyle.Render(header)
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		sb.WriteString(details)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// Selected returns the chosen device ID and whether the user picked one.
func (m DeviceListModel) Selected() (int, bool) {
	return m.deviceID, m.chosen
}

// SelectDevice runs the browser and returns the chosen device ID. ok is false
// when the user quit without choosing.
func SelectDevice(fetch func() ([]audio.Device, error)) (deviceID int, ok bool, err error) {
	p := tea.NewProgram(
		NewDeviceListModel(fetch),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return 0, false, err
	}
	m, _ := final.(DeviceListModel)
	if m.err != nil {
		return 0, false, m.err
	}
	id, chosen := m.Selected()
	return id, chosen, nil
}
