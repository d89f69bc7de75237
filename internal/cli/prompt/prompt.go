// Package prompt provides interactive terminal prompts for CLI commands.
package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// ErrPasswordMismatch indicates the confirmation did not match.
var ErrPasswordMismatch = errors.New("passwords do not match")

// IsAborted reports whether err means the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for text, offering defaultValue.
func Input(label, defaultValue string) (string, error) {
	p := promptui.Prompt{Label: label, Default: defaultValue}
	result, err := p.Run()
	return result, wrapError(err)
}

// Password prompts for a masked secret.
func Password(label string) ([]byte, error) {
	p := promptui.Prompt{Label: label, Mask: '*'}
	result, err := p.Run()
	if err != nil {
		return nil, wrapError(err)
	}
	return []byte(result), nil
}

// NewPassword prompts for a password of at least minLength bytes and its
// confirmation.
func NewPassword(minLength int) ([]byte, error) {
	p := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if len(input) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	first, err := p.Run()
	if err != nil {
		return nil, wrapError(err)
	}
	confirm, err := Password("Confirm password")
	if err != nil {
		return nil, err
	}
	if first != string(confirm) {
		return nil, ErrPasswordMismatch
	}
	return confirm, nil
}

// Confirm asks a yes/no question. force skips the prompt and answers yes.
func Confirm(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	p := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := p.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	default:
		return false, wrapError(err)
	}
}
