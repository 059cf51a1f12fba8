package crnnode

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"crn-node/internal/dht"
	"crn-node/internal/p2p"
)

// Printer receives console output. Command replies and the banner may be
// written from different goroutines.
type Printer interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

// StdPrinter serializes writes to w. Names are colored only when w is a
// terminal.
type StdPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewStdPrinter(w io.Writer) *StdPrinter {
	return &StdPrinter{w: w, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func (p *StdPrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *StdPrinter) Println(args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, args...)
}

// wantsColor reports whether names printed to p may carry ANSI colors.
func wantsColor(p Printer) bool {
	sp, ok := p.(*StdPrinter)
	return ok && sp.color
}

func printSelf(p Printer, n *p2p.Node) {
	st := n.Stats()
	p.Println()
	p.Println("== You ==")
	p.Printf("  Name:       %s\n", n.Name())
	p.Printf("  Addr:       %s\n", n.Addr())
	p.Printf("  Peers:      %d\n", st.Peers-1)
	p.Printf("  Keys:       %d\n", st.Keys)
	if relays := n.Relays(); len(relays) > 0 {
		p.Printf("  Relays:     %s\n", relayPath(relays))
	}
	p.Println()
}

// printPeers lists the directory without the self entry.
func printPeers(p Printer, peers []dht.Entry, self string, color bool) {
	if len(peers) <= 1 {
		p.Println("no peers known")
		return
	}
	p.Println()
	p.Printf("%-24s  %-10s  %s\n", "NAME", "ID", "ADDR")
	p.Printf("%-24s  %-10s  %s\n", "----", "--", "----")
	for _, e := range peers {
		if e.Name == self {
			continue
		}
		p.Printf("%-24s  %-10s  %s\n", formatName(e.Name, color), shortID(e.ID.Hex()), e.Addr)
	}
	p.Println()
}

func printStats(p Printer, st p2p.Stats) {
	p.Printf("peers=%d keys=%d pending=%d seen=%d relays=%d\n", st.Peers, st.Keys, st.Pending, st.Seen, st.Relays)
}

func printRelays(p Printer, relays []string) {
	if len(relays) == 0 {
		p.Println("direct")
		return
	}
	p.Printf("relays: %s\n", relayPath(relays))
}

func relayPath(relays []string) string { return strings.Join(relays, " -> ") }
