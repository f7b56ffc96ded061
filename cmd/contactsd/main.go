// Command contactsd runs the contacts platform: managed auth and the contacts
// table, served over TCP for the SDK and over HTTP for everything else.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
