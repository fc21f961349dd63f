package core

import (
	"strings"

	"gwi.com/kbchat/internal/vector"
)

// FuseResults renders one text block per query list, in query order.
// A chunk already emitted for an earlier list is dropped from later lists,
// so list order decides which query keeps a shared chunk.
// A list left empty renders to "" and keeps its position.
func FuseResults(lists [][]vector.Row) []string {
	seen := make(map[string]struct{})
	blocks := make([]string, len(lists))

	for i, rows := range lists {
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if _, dup := seen[row.ID]; dup {
				continue
			}
			seen[row.ID] = struct{}{}
			lines = append(lines, row.Q+"\n"+row.A)
		}
		blocks[i] = strings.Join(lines, "\n")
	}
	return blocks
}
