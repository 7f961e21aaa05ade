// Package picker lets commands take an ID argument or ask for one interactively.
package picker

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrNoOptions is returned when there is nothing to pick from
var ErrNoOptions = errors.New("nothing to choose from")

// Option is one selectable item
type Option struct {
	ID    string
	Label string
}

// prompt is swapped out in tests
var prompt = promptSelect

// Choose resolves an ID by the following priority:
// 1. If arg is set, use it
// 2. If only one option exists, use it
// 3. If the session is interactive, prompt the user
// 4. Otherwise fail and ask for the argument
func Choose(arg string, interactive bool, label string, load func() ([]Option, error)) (string, error) {
	if arg != "" {
		return arg, nil
	}

	options, err := load()
	if err != nil {
		return "", err
	}
	if len(options) == 0 {
		return "", ErrNoOptions
	}
	if len(options) == 1 {
		return options[0].ID, nil
	}
	if !interactive {
		return "", fmt.Errorf("%s: an ID argument is required in non-interactive mode", label)
	}

	index, err := prompt(label, options)
	if err != nil {
		return "", err
	}
	return options[index].ID, nil
}

func promptSelect(label string, options []Option) (int, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "{{ .Label | green }}",
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	index, _, err := p.Run()
	if err != nil {
		return 0, fmt.Errorf("selection cancelled: %w", err)
	}
	return index, nil
}
