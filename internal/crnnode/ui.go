package crnnode

import (
	"crn-node/internal/dht"
	"crn-node/internal/p2p"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
)

var nameColors = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// pickColor is stable per name so a peer keeps its color across listings.
func pickColor(s string) string {
	if s == "" {
		return ansiReset
	}
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*16777619 ^ uint32(s[i])
	}
	return nameColors[h%uint32(len(nameColors))]
}

func formatName(name string, color bool) string {
	if !color {
		return name
	}
	return pickColor(name) + name + ansiReset
}

func PrintBanner(p Printer, n *p2p.Node) {
	p.Println()
	p.Println("Node started.")
	p.Printf("Name:           %s\n", n.Name())
	p.Printf("ID:             %s\n", shortID(dht.HashOf(n.Name()).Hex()))
	p.Printf("Addr:           %s\n", n.Addr())
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    /me                          - prints your info")
	p.Println("    /peers                       - show the address directory")
	p.Println("    /learn <name> <host:port>    - add a peer to the directory")
	p.Println("    /active <name>               - greet a peer")
	p.Println("    /read <key>                  - read a key")
	p.Println("    /exists <key>                - check whether a key exists")
	p.Println("    /write <key> | <value>       - write a key")
	p.Println("    /cas <key> | <old> | <new>   - compare-and-swap a key")
	p.Println("    /relay <name>                - route requests through a peer")
	p.Println("    /unrelay                     - drop the most recent relay")
	p.Println("    /stats                       - show node counters")
	p.Println("    /quit                        - exit")
}
