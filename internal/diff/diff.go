// Package diff parses unified diffs and resolves review line numbers to
// provider comment positions.
package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a diff line.
type Kind string

const (
	// KindAdded marks a line present only on the new side.
	KindAdded Kind = "added"
	// KindDeleted marks a line present only on the old side.
	KindDeleted Kind = "deleted"
	// KindContext marks a line present on both sides.
	KindContext Kind = "context"
)

// Position anchors a review comment inside a unified diff. OldLine or
// NewLine is zero when the line does not exist on that side.
type Position struct {
	OldLine int
	NewLine int
	Kind    Kind
}

// Side reports the GitHub-style diff side for the position.
func (p Position) Side() string {
	if p.Kind == KindDeleted {
		return "LEFT"
	}
	return "RIGHT"
}

// GiteaSide reports the Gitea browser-form side value for the position.
func (p Position) GiteaSide() string {
	if p.Kind == KindDeleted {
		return "previous"
	}
	return "proposed"
}

// Line is one classified row of a hunk.
type Line struct {
	OldLine int
	NewLine int
	Kind    Kind
	Content string
}

// Hunk is one @@-delimited block of a file diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Header   string
	Lines    []Line
}

// FileDiff is the parsed diff of a single file.
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Counts omitted in a hunk header default to 1 per the unified format.
var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)`)

// Parse splits a multi-file unified diff into per-file hunks with
// classified lines.
func Parse(diffContent string) ([]FileDiff, error) {
	if strings.TrimSpace(diffContent) == "" {
		return nil, nil
	}

	var files []FileDiff
	chunks := regexp.MustCompile(`(?m)^diff --git a/`).Split(diffContent, -1)
	if len(chunks) == 1 {
		// Bare hunk body without file headers, common in provider API
		// payloads (GitLab changes endpoint returns per-file diffs).
		hunks, err := parseHunks(strings.Split(diffContent, "\n"))
		if err != nil {
			return nil, err
		}
		if len(hunks) == 0 {
			return nil, nil
		}
		return []FileDiff{{Hunks: hunks}}, nil
	}

	for _, chunk := range chunks[1:] {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		lines := strings.Split("diff --git a/"+chunk, "\n")
		oldPath, newPath := parseGitHeader(lines[0])

		hunks, err := parseHunks(lines)
		if err != nil {
			return nil, fmt.Errorf("parse hunks for %s: %w", newPath, err)
		}
		files = append(files, FileDiff{
			OldPath: oldPath,
			NewPath: newPath,
			Hunks:   hunks,
		})
	}
	return files, nil
}

func parseGitHeader(header string) (string, string) {
	parts := strings.Fields(header)
	if len(parts) == 4 {
		return strings.TrimPrefix(parts[2], "a/"), strings.TrimPrefix(parts[3], "b/")
	}
	return "", ""
}

func parseHunks(lines []string) ([]Hunk, error) {
	var hunks []Hunk
	for i := 0; i < len(lines); i++ {
		matches := hunkHeaderRe.FindStringSubmatch(lines[i])
		if matches == nil {
			continue
		}

		hunk := Hunk{
			OldStart: atoiDefault(matches[1], 0),
			OldCount: atoiDefault(matches[2], 1),
			NewStart: atoiDefault(matches[3], 0),
			NewCount: atoiDefault(matches[4], 1),
			Header:   strings.TrimSpace(matches[5]),
		}

		oldLine, newLine := hunk.OldStart, hunk.NewStart
		oldLeft, newLeft := hunk.OldCount, hunk.NewCount
		i++
		for ; i < len(lines); i++ {
			row := lines[i]
			if strings.HasPrefix(row, "@@") || strings.HasPrefix(row, "diff --git") {
				i--
				break
			}
			if row == `\ No newline at end of file` {
				continue
			}
			// The header's counts bound the hunk body; anything past them,
			// like the empty element a trailing newline splits into, is not
			// a diff line.
			if oldLeft <= 0 && newLeft <= 0 {
				i--
				break
			}

			var classified Line
			switch {
			case strings.HasPrefix(row, "+"):
				classified = Line{NewLine: newLine, Kind: KindAdded, Content: row[1:]}
				newLine++
				newLeft--
			case strings.HasPrefix(row, "-"):
				classified = Line{OldLine: oldLine, Kind: KindDeleted, Content: row[1:]}
				oldLine++
				oldLeft--
			case strings.HasPrefix(row, " "):
				classified = Line{OldLine: oldLine, NewLine: newLine, Kind: KindContext, Content: row[1:]}
				oldLine++
				newLine++
				oldLeft--
				newLeft--
			default:
				// Empty context lines sometimes lose their leading space in
				// transit; treat them as context.
				classified = Line{OldLine: oldLine, NewLine: newLine, Kind: KindContext, Content: row}
				oldLine++
				newLine++
				oldLeft--
				newLeft--
			}
			hunk.Lines = append(hunk.Lines, classified)
		}
		hunks = append(hunks, hunk)
	}
	return hunks, nil
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// Classify walks the diff hunk by hunk and resolves targetLine to a
// comment position. Added lines match on the new counter, deleted lines on
// the old counter, and context lines on either; context positions carry
// both line numbers.
func Classify(diffContent string, targetLine int) (Position, bool) {
	files, err := Parse(diffContent)
	if err != nil {
		return Position{}, false
	}
	for _, file := range files {
		for _, hunk := range file.Hunks {
			for _, line := range hunk.Lines {
				switch line.Kind {
				case KindAdded:
					if line.NewLine == targetLine {
						return Position{NewLine: line.NewLine, Kind: KindAdded}, true
					}
				case KindDeleted:
					if line.OldLine == targetLine {
						return Position{OldLine: line.OldLine, Kind: KindDeleted}, true
					}
				case KindContext:
					if line.NewLine == targetLine || line.OldLine == targetLine {
						return Position{OldLine: line.OldLine, NewLine: line.NewLine, Kind: KindContext}, true
					}
				}
			}
		}
	}
	return Position{}, false
}

// HasDeletedOldLine reports whether the diff removes the given old-side
// line. Providers that anchor on the old side need this to disambiguate a
// line number that exists on both sides.
func HasDeletedOldLine(diffContent string, oldLine int) bool {
	files, err := Parse(diffContent)
	if err != nil {
		return false
	}
	for _, file := range files {
		for _, hunk := range file.Hunks {
			for _, line := range hunk.Lines {
				if line.Kind == KindDeleted && line.OldLine == oldLine {
					return true
				}
			}
		}
	}
	return false
}

// FindFile returns the per-file diff whose new or old path matches path.
func FindFile(files []FileDiff, path string) (FileDiff, bool) {
	for _, file := range files {
		if file.NewPath == path || file.OldPath == path {
			return file, true
		}
	}
	return FileDiff{}, false
}
