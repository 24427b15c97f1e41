package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Annotate(ctx context.Context) error
	Comment(ctx context.Context) error
	List(ctx context.Context) error
	Delete(ctx context.Context) error
	DeleteComment(ctx context.Context) error
	Profile(ctx context.Context) error
	Peers(ctx context.Context) error
	Migrate(ctx context.Context) error
	Sweep(ctx context.Context) error
	Inspect(ctx context.Context) error
}

// runREPL starts a read-eval-print loop over the annotation data layer.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers print
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("annotify> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: annotate, comment, (l)ist, delete, delcomment, profile, peers, migrate, sweep, inspect, logout, exit")
			} else {
				printlnFn("Available commands: register, login, (l)ist, peers, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "annotate":
			_ = a.Annotate(ctx)

		case "comment":
			_ = a.Comment(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "delcomment":
			_ = a.DeleteComment(ctx)

		case "profile":
			_ = a.Profile(ctx)

		case "peers":
			_ = a.Peers(ctx)

		case "migrate":
			_ = a.Migrate(ctx)

		case "sweep":
			_ = a.Sweep(ctx)

		case "inspect":
			_ = a.Inspect(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
