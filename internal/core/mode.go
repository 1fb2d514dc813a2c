// Package core is the orchestration layer.  It composes a transport,
// the chat pipeline and a display surface into complete operational
// modes, and provides a builder that selects the mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  chat  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point; cmd only
// parses flags and calls it.
package core

import "context"

// Mode represents a complete operational mode of minechat (chatting or
// registering).  Each mode owns its full lifecycle from connection
// establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}

// Display is a surface that drains the chat queues until ctx is
// cancelled or the user leaves.
type Display interface {
	Run(ctx context.Context) error
}
