package ui

import (
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"hcahps/internal/analytics"
)

// SelectReports asks the user which reports of the battery to run and
// returns their identifiers in catalog order.
func SelectReports(defs []analytics.Definition) ([]string, error) {
	ids, titles := reportOptions(defs)
	selected := []string{}
	prompt := &survey.MultiSelect{
		Message:  "Reports to run:",
		Options:  ids,
		PageSize: 10,
		Description: func(_ string, index int) string {
			return titles[index]
		},
		Filter: func(filter string, value string, index int) bool {
			filter = strings.ToLower(filter)
			return strings.Contains(value, filter) || strings.Contains(strings.ToLower(titles[index]), filter)
		},
	}

	err := survey.AskOne(prompt, &selected, survey.WithValidator(survey.MinItems(1)))
	return selected, err
}

func reportOptions(defs []analytics.Definition) (ids, titles []string) {
	ids = make([]string, len(defs))
	titles = make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
		titles[i] = d.Title
	}
	return ids, titles
}

// Input displays a text input prompt
func Input(message, defaultValue, help string) (string, error) {
	var result string
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
		Help:    help,
	}

	err := survey.AskOne(prompt, &result)
	return result, err
}

// Password displays a password input prompt
func Password(message, help string) (string, error) {
	var result string
	prompt := &survey.Password{
		Message: message,
		Help:    help,
	}

	err := survey.AskOne(prompt, &result, survey.WithValidator(survey.Required))
	return result, err
}

// Select displays a selection prompt
func Select(message string, options []string, defaultValue string) (string, error) {
	var result string
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 10,
	}
	if defaultValue != "" {
		prompt.Default = defaultValue
	}

	err := survey.AskOne(prompt, &result)
	return result, err
}

// Confirm asks a yes/no question
func Confirm(message string, defaultValue bool) (bool, error) {
	result := false
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}

	err := survey.AskOne(prompt, &result)
	return result, err
}
