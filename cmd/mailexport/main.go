// Command mailexport browses IMAP mailboxes and exports messages as EML,
// MBOX, JSON or CSV, either interactively or from scripts.
package main

import (
	"os"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	env := newEnv()
	err := newRootCmd(env).Execute()
	env.close()
	if err != nil {
		os.Exit(1)
	}
}
