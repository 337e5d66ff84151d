package client

import (
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"

	"chatrelay/pkg/protocol"
)

// UI is the gocui terminal front end: a message pane, an online-users
// sidebar, a status bar, and an input line.
type UI struct {
	gui    *gocui.Gui
	client *Client

	msgView    string
	userView   string
	statusView string
	inputView  string
}

// NewUI builds the terminal UI over an authenticated client.
func NewUI(c *Client) (*UI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}

	ui := &UI{
		gui:        g,
		client:     c,
		msgView:    "messages",
		userView:   "users",
		statusView: "status",
		inputView:  "input",
	}

	g.SetManagerFunc(ui.layout)
	return ui, nil
}

// Run wires keybindings, starts the event pump, and blocks in the
// gocui main loop until quit.
func (ui *UI) Run() error {
	defer ui.gui.Close()

	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, ui.quit); err != nil {
		return err
	}
	if err := ui.gui.SetKeybinding(ui.inputView, gocui.KeyEnter, gocui.ModNone, ui.submit); err != nil {
		return err
	}

	go ui.pump()

	if err := ui.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func (ui *UI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 20
	msgWidth := maxX - sidebarWidth - 1
	msgHeight := maxY - 5

	if v, err := g.SetView(ui.msgView, 0, 0, msgWidth, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(ui.userView, msgWidth+1, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Online Users"
		v.Wrap = true
	}

	if v, err := g.SetView(ui.statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Wrap = true
		fmt.Fprintf(v, "Logged in as %s | /dm <user> <message>, /quit to exit", ui.client.Username())
	}

	if v, err := g.SetView(ui.inputView, 0, msgHeight+3, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Input"
		v.Editable = true
		v.Wrap = true
		if _, err := g.SetCurrentView(ui.inputView); err != nil {
			return err
		}
	}

	return nil
}

// pump renders every incoming server event until the connection ends.
func (ui *UI) pump() {
	for event := range ui.client.Events() {
		ui.render(event)
	}
	ui.appendMessage("[Server]: Disconnected.")
	ui.gui.Update(func(g *gocui.Gui) error {
		return nil
	})
}

// render maps one server event onto the UI.
func (ui *UI) render(event protocol.Event) {
	switch event.Type {
	case protocol.EventBroadcast:
		ui.appendMessage(fmt.Sprintf("[Public] %s: %s", event.From, event.Message))
	case protocol.EventDirect:
		ui.appendMessage(fmt.Sprintf("[DM] %s: %s", event.From, event.Message))
	case protocol.EventUserList:
		ui.setUsers(event.Users)
	case protocol.EventStatus:
		ui.appendMessage(fmt.Sprintf("[Server]: %s", event.Message))
	case protocol.EventError:
		ui.appendMessage(fmt.Sprintf("[Error]: %s", event.Message))
	}
}

func (ui *UI) appendMessage(line string) {
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.msgView)
		if err != nil {
			return err
		}
		fmt.Fprintln(v, line)
		return nil
	})
}

func (ui *UI) setUsers(users []string) {
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.userView)
		if err != nil {
			return err
		}
		v.Clear()
		for _, user := range users {
			fmt.Fprintln(v, user)
		}
		return nil
	})
}

// submit parses the input line: "/dm <user> <message>" sends a direct
// message, "/quit" exits, anything else is a public message.
func (ui *UI) submit(g *gocui.Gui, v *gocui.View) error {
	line := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if line == "" {
		return nil
	}

	switch {
	case line == "/quit" || line == "/exit":
		_ = ui.client.Exit()
		return gocui.ErrQuit

	case strings.HasPrefix(line, "/dm "):
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			ui.appendMessage("[Error]: usage: /dm <user> <message>")
			return nil
		}
		if err := ui.client.SendDirect(parts[1], parts[2]); err != nil {
			ui.appendMessage(fmt.Sprintf("[Error]: %v", err))
		}

	case strings.HasPrefix(line, "/"):
		ui.appendMessage("[Error]: unknown command, use /dm or /quit")

	default:
		if err := ui.client.SendPublic(line); err != nil {
			ui.appendMessage(fmt.Sprintf("[Error]: %v", err))
		}
	}
	return nil
}

func (ui *UI) quit(g *gocui.Gui, v *gocui.View) error {
	_ = ui.client.Exit()
	return gocui.ErrQuit
}
