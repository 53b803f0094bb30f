// Command nudge stores context-triggered reminders and fires them as device
// events arrive.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nudge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
