package config

import (
	"fmt"
	"os"
)

// Exitf prints the formatted message to stderr and exits with status 1.
// Used by main functions when startup configuration cannot be loaded.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
