package colors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestInit_ForceOn(t *testing.T) {
	// Save and restore original state
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = true // start disabled
	forceOn := true
	Init(&forceOn)

	if color.NoColor {
		t.Error("expected colors enabled when Init(true)")
	}
	if !Enabled() {
		t.Error("Enabled() should return true")
	}
}

func TestInit_ForceOff(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false // start enabled
	forceOff := false
	Init(&forceOff)

	if !color.NoColor {
		t.Error("expected colors disabled when Init(false)")
	}
	if Enabled() {
		t.Error("Enabled() should return false")
	}
}

func TestInit_Nil_KeepsExisting(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	// Test with colors enabled
	color.NoColor = false
	Init(nil)
	if color.NoColor {
		t.Error("Init(nil) should not change NoColor when it was false")
	}

	// Test with colors disabled
	color.NoColor = true
	Init(nil)
	if !color.NoColor {
		t.Error("Init(nil) should not change NoColor when it was true")
	}
}

func TestColorOutput_Enabled(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false

	result := Bold().Sprint("test")
	if !strings.Contains(result, "\x1b[") {
		t.Errorf("expected ANSI codes when colors enabled, got: %q", result)
	}
}

func TestColorOutput_Disabled(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = true

	result := Bold().Sprint("test")
	if strings.Contains(result, "\x1b[") {
		t.Errorf("expected no ANSI codes when colors disabled, got: %q", result)
	}
	if result != "test" {
		t.Errorf("expected plain 'test', got: %q", result)
	}
}

func TestAllConstructors(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false

	constructors := []struct {
		name string
		fn   func() *color.Color
	}{
		{"Bold", Bold},
		{"Faint", Faint},
		{"HiBlue", HiBlue},
		{"HiCyan", HiCyan},
		{"HiGreen", HiGreen},
		{"HiYellow", HiYellow},
		{"BoldHiRed", BoldHiRed},
		{"Addr", Addr},
		{"Path", Path},
		{"Size", Size},
		{"Good", Good},
		{"Warn", Warn},
		{"Fail", Fail},
	}

	for _, tc := range constructors {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.fn()
			if c == nil {
				t.Errorf("%s() returned nil", tc.name)
				return
			}
			result := c.Sprint("x")
			if !strings.Contains(result, "\x1b[") {
				t.Errorf("%s().Sprint() should produce ANSI codes, got: %q", tc.name, result)
			}
		})
	}
}
