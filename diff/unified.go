package diff

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Unified renders a classic line-based unified diff between base and target,
// with headers labeled "old" and "new". Identical inputs yield an empty
// string. This form feeds plain-text notification bodies, not the
// interactive inline view.
func Unified(base, target string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(base),
		B:        difflib.SplitLines(target),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("unified diff: %w", err)
	}
	return out, nil
}
