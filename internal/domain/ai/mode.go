package ai

import "fmt"

type Mode string

const (
	ModeFlash    Mode = "flash"
	ModeStandard Mode = "standard"
	ModeDeepDive Mode = "deepdive"
	ModeNeural   Mode = "neural"
)

// ModeConfig is the backend profile for a mode.
type ModeConfig struct {
	Mode        Mode
	MaxChars    int
	Model       string
	Temperature float32
	// RequiredLevel is the minimum tier level allowed to use the mode
	RequiredLevel int
}

// CustomPromptLevel is the minimum tier level that may override the prompt.
const CustomPromptLevel = 3

var modes = map[Mode]ModeConfig{
	ModeFlash:    {Mode: ModeFlash, MaxChars: 10000, Model: "gpt-4o-mini", Temperature: 0.3, RequiredLevel: 0},
	ModeStandard: {Mode: ModeStandard, MaxChars: 20000, Model: "gpt-4o-mini", Temperature: 0.3, RequiredLevel: 0},
	ModeDeepDive: {Mode: ModeDeepDive, MaxChars: 50000, Model: "gpt-4o", Temperature: 0.2, RequiredLevel: 3},
	ModeNeural:   {Mode: ModeNeural, MaxChars: 100000, Model: "gpt-4o", Temperature: 0.1, RequiredLevel: 4},
}

// ConfigFor returns the profile for m, standard when unknown.
func ConfigFor(m Mode) ModeConfig {
	if c, ok := modes[m]; ok {
		return c
	}
	return modes[ModeStandard]
}

func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeStandard, nil
	}
	m := Mode(s)
	if _, ok := modes[m]; !ok {
		return "", fmt.Errorf("unknown analysis mode %q", s)
	}
	return m, nil
}
