package ui

import (
	"github.com/AlecAivazis/survey/v2"
)

// Confirm asks a yes/no question on the terminal.
func Confirm(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}

// SelectOption asks the user to pick one of options.
func SelectOption(message string, options []string) (string, error) {
	var selected string
	prompt := &survey.Select{
		Message: message,
		Options: options,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}
