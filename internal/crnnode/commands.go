package crnnode

import (
	"bufio"
	"context"
	"io"
	"strings"
)

func (a *App) readCommands(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		a.handleCommand(ctx, line)
	}
}

// splitArgs splits on " | " so keys and values may contain spaces.
func splitArgs(s string, n int) ([]string, bool) {
	parts := strings.Split(s, "|")
	if len(parts) != n {
		return nil, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, parts[0] != ""
}

func arg(line, cmd string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, cmd))
}

func (a *App) handleCommand(ctx context.Context, line string) {
	n := a.Node
	switch {
	case line == "/quit", line == "/exit":
		a.ui.Println("quitting...")
		a.requestQuit()

	case line == "/help":
		PrintCommands(a.ui)

	case line == "/me":
		printSelf(a.ui, n)

	case line == "/peers":
		printPeers(a.ui, n.Peers(), n.Name(), a.color)

	case line == "/stats":
		printStats(a.ui, n.Stats())

	case strings.HasPrefix(line, "/learn "):
		fields := strings.Fields(arg(line, "/learn"))
		if len(fields) != 2 {
			a.ui.Println("usage: /learn <name> <host:port>")
			return
		}
		if err := n.Learn(fields[0], fields[1]); err != nil {
			a.ui.Printf("learn failed: %v\n", err)
			return
		}
		a.ui.Printf("learned %s\n", fields[0])

	case strings.HasPrefix(line, "/active "):
		name := arg(line, "/active")
		if n.IsActive(ctx, name) {
			a.ui.Printf("%s is active\n", name)
		} else {
			a.ui.Printf("%s is not responding\n", name)
		}

	case strings.HasPrefix(line, "/read "):
		key := arg(line, "/read")
		if v, ok := n.Read(ctx, key); ok {
			a.ui.Printf("%s = %s\n", key, v)
		} else {
			a.ui.Printf("%s not found\n", key)
		}

	case strings.HasPrefix(line, "/exists "):
		key := arg(line, "/exists")
		a.ui.Printf("%s exists: %t\n", key, n.Exists(ctx, key))

	case strings.HasPrefix(line, "/write "):
		parts, ok := splitArgs(arg(line, "/write"), 2)
		if !ok {
			a.ui.Println("usage: /write <key> | <value>")
			return
		}
		if n.Write(ctx, parts[0], parts[1]) {
			a.ui.Printf("wrote %s\n", parts[0])
		} else {
			a.ui.Printf("write rejected: %s\n", parts[0])
		}

	case strings.HasPrefix(line, "/cas "):
		parts, ok := splitArgs(arg(line, "/cas"), 3)
		if !ok {
			a.ui.Println("usage: /cas <key> | <old> | <new>")
			return
		}
		if n.CompareAndSwap(ctx, parts[0], parts[1], parts[2]) {
			a.ui.Printf("swapped %s\n", parts[0])
		} else {
			a.ui.Printf("swap failed: %s\n", parts[0])
		}

	case strings.HasPrefix(line, "/relay "):
		name := arg(line, "/relay")
		if err := n.PushRelay(name); err != nil {
			a.ui.Printf("relay failed: %v\n", err)
			return
		}
		printRelays(a.ui, n.Relays())

	case line == "/unrelay":
		n.PopRelay()
		printRelays(a.ui, n.Relays())

	default:
		a.ui.Printf("%sunknown command: %s%s\n", ansiDim, line, ansiReset)
	}
}
