package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Report renders the branch's current counts as a plain-text summary,
// grouped by category, with dashes for quantities not entered yet.
func (s *Store) Report(ctx context.Context, branch string) (string, error) {
	counts, err := s.Counts(ctx, branch)
	if err != nil {
		return "", err
	}
	done, total, err := s.Completion(ctx, branch)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Инвентаризация: %s\n", branch)
	fmt.Fprintf(&b, "Заполнено: %d из %d\n", done, total)

	category := ""
	for _, c := range counts {
		if c.Item.Category != category {
			category = c.Item.Category
			fmt.Fprintf(&b, "\n%s\n", category)
		}
		fmt.Fprintf(&b, "  %s: сырьё %s, п/ф %s %s\n",
			c.Item.Name, qty(c.Raw), qty(c.Semi), c.Item.Unit)
	}
	return b.String(), nil
}

func qty(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
