package fetch

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sheerbytes/filehost/internal/client"
)

func printListing(w io.Writer, names []string) {
	fmt.Fprintf(w, "%-8s%s\n", "Index", "File Name")
	for i, name := range names {
		fmt.Fprintf(w, "%-8d%s\n", i, name)
	}
}

// parseSelection maps a comma separated list of indexes onto names. Entries
// that are not valid indexes are returned in bad. Repeated indexes are kept once.
func parseSelection(input string, names []string) (selected, bad []string) {
	seen := make(map[int]bool)
	for _, field := range strings.Split(input, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		i, err := strconv.Atoi(field)
		if err != nil || i < 0 || i >= len(names) {
			bad = append(bad, field)
			continue
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		selected = append(selected, names[i])
	}
	return selected, bad
}

// selectFiles shows the listing and reads the user's index selection.
func selectFiles(in *bufio.Reader, out io.Writer, names []string) ([]string, error) {
	fmt.Fprintln(out, "\nSelect files to download by index number. For multiple files separate the index numbers with commas:")
	fmt.Fprintln(out)
	printListing(out, names)
	fmt.Fprint(out, "\n> ")

	line, err := readLine(in)
	if err != nil {
		return nil, err
	}
	selected, bad := parseSelection(line, names)
	for _, b := range bad {
		fmt.Fprintf(out, "Index %s not found!\n", b)
	}
	return selected, nil
}

func promptMode(in *bufio.Reader, out io.Writer) (client.Mode, error) {
	fmt.Fprint(out, "Enter\n0 - Serial download\n1 - Parallel download\n> ")
	line, err := readLine(in)
	if err != nil {
		return 0, err
	}
	return client.ParseMode(line)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
