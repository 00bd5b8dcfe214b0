// serialsh is an interactive terminal for a serial device. Lines typed at
// the prompt are either built-in commands or written to the device as is;
// everything the device sends is printed as it arrives.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
