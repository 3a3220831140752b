package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errEndOfInput is returned when stdin is closed.
var errEndOfInput = errors.New("end of input")

// prompter reads user input from one shared buffered reader so that command
// lines, prompts and pasted messages never race for stdin.
type prompter struct {
	in  *bufio.Reader
	tty bool
}

func newPrompter() *prompter {
	return &prompter{
		in:  bufio.NewReader(os.Stdin),
		tty: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// readLine prints label and returns one trimmed line.
func (p *prompter) readLine(label string) (string, error) {
	if label != "" {
		fmt.Print(label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", errEndOfInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads a line without echo on a terminal.
func (p *prompter) readSecret(label string) (string, error) {
	if !p.tty {
		return p.readLine(label)
	}
	fmt.Print(label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readBlock reads lines until a line containing only "." or end of input.
// Line breaks are preserved; MT messages are line oriented.
func (p *prompter) readBlock(label string) (string, error) {
	if label != "" {
		fmt.Println(label)
	}
	var sb strings.Builder
	for {
		line, err := p.in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}
		sb.WriteString(trimmed)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// confirm asks a yes/no question, defaulting to yes.
func (p *prompter) confirm(label string) bool {
	answer, err := p.readLine(label + " [Y/n]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "" || answer == "y" || answer == "yes"
}
