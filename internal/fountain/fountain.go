// Package fountain is a minimal, explicitly non-conformance line-oriented
// writer/reader for this module's own block model. It exists only so
// RealTimeDocument.Save and project/document load have some on-disk
// encoding to round-trip through; it is not a Fountain-language parser and
// must not be mistaken for one outside this module.
package fountain

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fountainhead/scriptsync/internal/block"
)

// Write renders blocks as line-oriented text: scene headings upper-cased
// with a blank line on either side, character cues upper-cased and
// indented, parentheticals parenthesized, dialogue indented, transitions
// right-flush, centered text bracketed, and notes bracket-commented.
func Write(blocks []*block.Block) ([]byte, error) {
	var sb strings.Builder
	for i, b := range blocks {
		text := plainText(b)

		switch b.BlockType {
		case block.SceneHeading:
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(strings.ToUpper(text))
			sb.WriteString("\n\n")
		case block.Character:
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat(" ", 20))
			sb.WriteString(strings.ToUpper(text))
			sb.WriteString("\n")
		case block.Parenthetical:
			sb.WriteString(strings.Repeat(" ", 15))
			sb.WriteString("(")
			sb.WriteString(text)
			sb.WriteString(")\n")
		case block.Dialogue:
			sb.WriteString(strings.Repeat(" ", 10))
			sb.WriteString(text)
			sb.WriteString("\n")
		case block.Transition:
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat(" ", 40))
			sb.WriteString(strings.ToUpper(text))
			sb.WriteString("\n")
		case block.Centered:
			sb.WriteString(strings.Repeat(" ", 25))
			sb.WriteString("> ")
			sb.WriteString(text)
			sb.WriteString(" <\n")
		case block.Note:
			sb.WriteString("[[")
			sb.WriteString(text)
			sb.WriteString("]]\n")
		case block.Separator:
			sb.WriteString("===\n")
		case block.DualDialogue:
			sb.WriteString(strings.Repeat(" ", 10))
			sb.WriteString(text)
			sb.WriteString(" ^\n")
		case block.Action:
			sb.WriteString(text)
			sb.WriteString("\n")
		default:
			return nil, fmt.Errorf("fountain: unknown block type %v", b.BlockType)
		}
	}
	return []byte(sb.String()), nil
}

// Read parses bytes written by Write back into blocks. It is deliberately
// forgiving: a line it cannot classify becomes an Action block, matching
// the reader's job of round-tripping this module's own output rather than
// validating arbitrary Fountain source.
func Read(data []byte) ([]*block.Block, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []*block.Block
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var bt block.Type
		text := trimmed

		switch {
		case trimmed == "===":
			bt = block.Separator
			text = ""
		case strings.HasPrefix(trimmed, "[[") && strings.HasSuffix(trimmed, "]]"):
			bt = block.Note
			text = strings.TrimSuffix(strings.TrimPrefix(trimmed, "[["), "]]")
		case strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") && strings.HasPrefix(line, strings.Repeat(" ", 15)):
			bt = block.Parenthetical
			text = strings.TrimSuffix(strings.TrimPrefix(trimmed, "("), ")")
		case strings.HasPrefix(trimmed, "> ") && strings.HasSuffix(trimmed, " <"):
			bt = block.Centered
			text = strings.TrimSuffix(strings.TrimPrefix(trimmed, "> "), " <")
		case strings.HasSuffix(trimmed, " ^"):
			bt = block.DualDialogue
			text = strings.TrimSuffix(trimmed, " ^")
		case strings.HasPrefix(line, strings.Repeat(" ", 40)):
			bt = block.Transition
		case strings.HasPrefix(line, strings.Repeat(" ", 20)):
			bt = block.Character
		case strings.HasPrefix(line, strings.Repeat(" ", 10)):
			bt = block.Dialogue
		case isSceneHeading(trimmed):
			bt = block.SceneHeading
		default:
			bt = block.Action
		}

		blocks = append(blocks, block.NewWithContents(bt, []block.Item{block.TextItem(text)}))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fountain: scan: %w", err)
	}
	return blocks, nil
}

var sceneHeadingPrefixes = []string{"INT.", "EXT.", "INT/EXT.", "I/E."}

func isSceneHeading(line string) bool {
	upper := strings.ToUpper(line)
	for _, p := range sceneHeadingPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

func plainText(b *block.Block) string {
	var sb strings.Builder
	for _, it := range b.Contents {
		if it.Kind == block.ItemText {
			sb.WriteString(it.Text)
		}
	}
	return sb.String()
}
