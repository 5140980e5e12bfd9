// ABOUTME: Entry point for voidluxtop, a swarm-status TUI polling one node's HTTP surface.
// ABOUTME: Parses flags, constructs the model, then runs it via tea.NewProgram.Run.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	var url string
	var interval time.Duration

	fs := flag.NewFlagSet("voidluxtop", flag.ContinueOnError)
	fs.StringVar(&url, "url", "http://localhost:8787", "base URL of a voidlux node's HTTP surface")
	fs.DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "voidluxtop: live swarm status over a node's HTTP surface\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  voidluxtop [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	client := newClient(url)
	m := newModel(client, interval)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "voidluxtop: %v\n", err)
		os.Exit(1)
	}
}
