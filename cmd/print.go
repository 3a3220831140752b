package main

import (
	"fmt"

	"github.com/swiftbridge/convert-client/internal/tui"
)

// Print helper functions for consistent output formatting.
func printHeader(title string) {
	fmt.Printf("%s%s========================================%s\n", tui.ColorBold, tui.ColorCyan, tui.ColorReset)
	fmt.Printf("%s%s       %s%s\n", tui.ColorBold, tui.ColorCyan, title, tui.ColorReset)
	fmt.Printf("%s%s========================================%s\n", tui.ColorBold, tui.ColorCyan, tui.ColorReset)
	fmt.Println()
}

func printSuccess(msg string) {
	fmt.Printf("%s[OK]%s %s\n", tui.ColorGreen, tui.ColorReset, msg)
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", tui.ColorBlue, tui.ColorReset, msg)
}

func printWarn(msg string) {
	fmt.Printf("%s[WARN]%s %s\n", tui.ColorYellow, tui.ColorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", tui.ColorRed, tui.ColorReset, msg)
}

func printStep(msg string) {
	fmt.Printf("%s>>>%s %s\n", tui.ColorCyan, tui.ColorReset, msg)
}

// userError is an error whose text is already fit to show the user.
type userError string

func (e userError) Error() string { return string(e) }
