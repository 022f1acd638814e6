package chapters

import (
	"context"
	"errors"

	"github.com/charmbracelet/huh"
)

// TerminalPicker shows an interactive multi-select in the terminal.
type TerminalPicker struct {
	Title string
}

func (p TerminalPicker) Pick(ctx context.Context, names []string) ([]string, error) {
	title := p.Title
	if title == "" {
		title = "Select which chapters to read in the audiobook"
	}

	var selected []string
	field := huh.NewMultiSelect[string]().
		Title(title).
		Options(huh.NewOptions(names...)...).
		Value(&selected).
		Validate(func(v []string) error {
			if len(v) == 0 {
				return errors.New("select at least one chapter")
			}
			return nil
		})

	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		return nil, err
	}
	return selected, nil
}
