package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/boardcast/boardcast/pkg/client/ui"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	server := flag.String("server", "localhost:8080", "Server address (host:port)")
	useTLS := flag.Bool("tls", false, "Connect over TLS (wss/https)")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Boardcast Client %s\n", Version)
		os.Exit(0)
	}

	model := ui.NewModel(*server, *useTLS)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
