// pkg/interaction/prompt.go

package interaction

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// ReadLine prints a label and reads one trimmed line from the reader.
func ReadLine(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PromptInput displays a prompt and reads user input, falling back to a
// default when the user just presses enter.
func PromptInput(prompt, defaultVal string) string {
	reader := bufio.NewReader(os.Stdin)
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// PromptYesNo asks a yes/no question and returns true/false. Falls back to
// the default if the answer is unrecognized.
func PromptYesNo(prompt string, defaultYes bool) bool {
	defPrompt := "Y/n"
	if !defaultYes {
		defPrompt = "y/N"
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := ReadLine(reader, fmt.Sprintf("%s [%s]", prompt, defPrompt))
	if err != nil {
		zap.L().Error("Failed to read yes/no input", zap.Error(err))
		return defaultYes
	}

	if answer, ok := NormalizeYesNoInput(input); ok {
		return answer
	}
	return defaultYes
}

// NormalizeYesNoInput maps common yes/no spellings to a bool. The second
// return reports whether the input was recognized at all.
func NormalizeYesNoInput(input string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes", "true", "1":
		return true, true
	case "n", "no", "false", "0":
		return false, true
	default:
		return false, false
	}
}

// PromptSecret asks the user for a hidden input (no terminal echo).
func PromptSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("secret prompt failed: no terminal available")
	}

	fmt.Print(prompt + ": ")
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		zap.L().Error("Failed to read secret input", zap.Error(err))
		return "", err
	}
	return strings.TrimSpace(string(bytePassword)), nil
}
