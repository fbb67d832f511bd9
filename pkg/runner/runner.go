// Package runner owns process lifecycle: startup banner, run state, and
// signal-driven draining of in-flight sessions.
package runner

import (
	"bytes"
	"os"

	"github.com/dimiro1/banner"
)

// State tracks where the process is in its lifecycle.
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Hooks are optional callbacks fired at lifecycle edges.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer finishes in-flight sessions before the process exits.
type Drainer interface {
	Drain() error
}

const EngineVersion = "dev"

// PrintBanner writes the startup banner to stdout.
func PrintBanner() {
	tpl := "{{ .Title \"EMORA\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
