// Package colors provides centralized color output with TTY-aware defaults.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). This behavior is provided by the underlying fatih/color
// library and respected by default. Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init allows overriding the auto-detected color setting.
//
//   - forceColor == nil: keep auto-detected value
//   - forceColor == true: force colors on (e.g., --color flag)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

func Bold() *color.Color  { return color.New(color.Bold) }
func Faint() *color.Color { return color.New(color.Faint) }

func HiBlue() *color.Color   { return color.New(color.FgHiBlue) }
func HiCyan() *color.Color   { return color.New(color.FgHiCyan) }
func HiGreen() *color.Color  { return color.New(color.FgHiGreen) }
func HiYellow() *color.Color { return color.New(color.FgHiYellow) }

func BoldHiRed() *color.Color { return color.New(color.Bold, color.FgHiRed) }

// Addr is used for virtual addresses and file offsets.
func Addr() *color.Color { return HiBlue() }

// Path is used for file names.
func Path() *color.Color { return Bold() }

// Size is used for human readable sizes.
func Size() *color.Color { return HiCyan() }

// Good marks a positive result, e.g. a prelinked library.
func Good() *color.Color { return HiGreen() }

// Warn marks something odd but not fatal.
func Warn() *color.Color { return HiYellow() }

// Fail marks a failed item in a listing.
func Fail() *color.Color { return BoldHiRed() }
