// minechat is a resilient client for the minechat line-protocol chat.
//
//	minechat [flags]                  read and write the chat
//	minechat register -u NAME         create an account, save its token
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"minechat/cmd"
)

func main() {
	os.Exit(run())
}

// run returns the process exit status.  Ctrl-C ends a chat cleanly.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx, os.Args[1:])
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "minechat:", err)
	return 1
}
