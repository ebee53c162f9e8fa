package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL drives.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit". Command
// errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "tk%s> ", statusFn())

		line, err := readLine(reader)
		if err != nil {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, "Available commands: whoami, refresh, logout, ping, exit")
			} else {
				fmt.Fprintln(w, "Available commands: register, login, ping, exit")
			}
		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "whoami", "me":
			cmdErr = a.WhoAmI(ctx)
		case "refresh":
			cmdErr = a.Refresh(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "ping":
			cmdErr = a.Ping(ctx)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(w, "Error:", cmdErr)
		}
	}
}
