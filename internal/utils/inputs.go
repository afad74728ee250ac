package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptYesNo asks question on w until a yes/no answer is read from r.
// EOF counts as no.
func PromptYesNo(r io.Reader, w io.Writer, question string) bool {
	reader := bufio.NewReader(r)
	for {
		fmt.Fprintf(w, "%s (y/n): ", question)
		response, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return false
		}
		fmt.Fprintln(w, "Please enter y or n")
	}
}
