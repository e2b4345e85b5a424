package main

import (
	"fmt"
	"strings"

	"github.com/livereview/lrtool/internal/diff"
	"github.com/livereview/lrtool/internal/providers"
)

func printComments(comments []providers.Comment) {
	if len(comments) == 0 {
		fmt.Println("no comments")
		return
	}
	for _, c := range comments {
		location := ""
		if c.Path != "" {
			location = fmt.Sprintf(" [%s:%d]", c.Path, c.Line)
		}
		marker := ""
		if c.System {
			marker = " (system)"
		}
		body := strings.ReplaceAll(c.Body, "\n", " ")
		if len(body) > 120 {
			body = body[:120] + "..."
		}
		fmt.Printf("%-12s %-20s%s%s %s\n", c.ID, c.Author, location, marker, body)
	}
	fmt.Printf("%d comments\n", len(comments))
}

// positionFromSide builds a diff position from explicit --line/--side
// flags for providers where the caller already knows the diff side.
func positionFromSide(line int, side string) (diff.Position, error) {
	switch strings.ToLower(side) {
	case "", "new":
		return diff.Position{Kind: diff.KindAdded, NewLine: line}, nil
	case "old":
		return diff.Position{Kind: diff.KindDeleted, OldLine: line}, nil
	default:
		return diff.Position{}, fmt.Errorf("invalid side %q (want new or old)", side)
	}
}
