package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether the given file descriptor refers to a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd)) //nolint:gosec // G115: fd values are small non-negative integers
}

// StyledOutput reports whether output to f should carry color: f is a
// terminal and NO_COLOR is unset.
func StyledOutput(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTTY(f.Fd())
}
