package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tarun-kavipurapu/lanfetch/peer"

	"github.com/c-bata/go-prompt"
)

var yesNo = []prompt.Suggest{
	{Text: "yes", Description: "Download the files"},
	{Text: "no", Description: "Cancel"},
}

func yesNoCompleter(d prompt.Document) []prompt.Suggest {
	return prompt.FilterHasPrefix(yesNo, d.GetWordBeforeCursor(), true)
}

// confirm asks a yes/no question; an empty answer means yes.
func confirm(question string) bool {
	q := question + " (Y/n) "
	if !peer.IsTerminal(os.Stdin) {
		fmt.Print(q)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		return parseAnswer(line)
	}
	return parseAnswer(prompt.Input(q, yesNoCompleter, prompt.OptionTitle("lanfetch")))
}

func parseAnswer(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}
