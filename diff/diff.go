// Package diff computes differences between two content strings in two
// renderings: character-level opcodes (for inline HTML markup) and a
// line-based unified diff (for plain-text notification bodies).
//
// The opcode matcher is a Myers greedy diff over runes with common
// prefix/suffix trimming. The pairing is stable: diffing the same two
// strings always yields the same opcode sequence.
package diff

import "strings"

// Op is an opcode tag.
type Op string

// Opcode tags. A "replace" region renders deletion first, insertion second.
const (
	OpEqual   Op = "equal"
	OpInsert  Op = "insert"
	OpDelete  Op = "delete"
	OpReplace Op = "replace"
)

// OpCode describes one aligned region: base[I1:I2] vs target[J1:J2].
// Offsets are rune indices, not byte offsets.
type OpCode struct {
	Tag Op
	I1  int
	I2  int
	J1  int
	J2  int
}

// maxEditDistance bounds the Myers search depth. Inputs whose middle section
// differs by more than this many edits collapse into a single coarse replace
// opcode for that section; the result stays deterministic.
const maxEditDistance = 2048

// Opcodes aligns base and target as rune sequences and returns the opcode
// list. Identical inputs yield a single all-equal opcode (or an empty list
// when both inputs are empty).
func Opcodes(base, target string) []OpCode {
	return opcodes([]rune(base), []rune(target))
}

func opcodes(a, b []rune) []OpCode {
	pre := commonPrefix(a, b)
	suf := commonSuffix(a[pre:], b[pre:])

	mid := myers(a[pre:len(a)-suf], b[pre:len(b)-suf])

	ops := make([]OpCode, 0, len(mid)+2)
	if pre > 0 {
		ops = append(ops, OpCode{OpEqual, 0, pre, 0, pre})
	}
	for _, op := range mid {
		op.I1 += pre
		op.I2 += pre
		op.J1 += pre
		op.J2 += pre
		ops = append(ops, op)
	}
	if suf > 0 {
		ops = append(ops, OpCode{OpEqual, len(a) - suf, len(a), len(b) - suf, len(b)})
	}
	return mergeAdjacentEqual(ops)
}

func commonPrefix(a, b []rune) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffix(a, b []rune) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

// myers runs the greedy O(ND) diff on the trimmed middle sections and
// returns coalesced opcodes relative to a and b.
func myers(a, b []rune) []OpCode {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		return []OpCode{{OpInsert, 0, 0, 0, m}}
	case m == 0:
		return []OpCode{{OpDelete, 0, n, 0, 0}}
	}

	total := n + m
	offset := total
	v := make([]int, 2*total+1)

	// trace[d] holds the depth d-1 frontier for ks -(d-1)..(d-1) step 2,
	// which backtracking needs to recover the path.
	var trace [][]int

	found := -1
	for d := 0; d <= total && d <= maxEditDistance; d++ {
		if d == 0 {
			trace = append(trace, nil)
		} else {
			snap := make([]int, d)
			for i := 0; i < d; i++ {
				k := -(d - 1) + 2*i
				snap[i] = v[k+offset]
			}
			trace = append(trace, snap)
		}

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[k-1+offset] < v[k+1+offset]) {
				x = v[k+1+offset]
			} else {
				x = v[k-1+offset] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[k+offset] = x
			if x >= n && y >= m {
				found = d
				break
			}
		}
		if found >= 0 {
			break
		}
	}

	if found < 0 {
		// Edit distance beyond budget: coarse replace.
		return []OpCode{{OpReplace, 0, n, 0, m}}
	}

	return coalesce(backtrack(trace, found, n, m))
}

// backtrack walks the trace from (n, m) to (0, 0) and emits unit opcodes in
// reverse order.
func backtrack(trace [][]int, found, n, m int) []OpCode {
	var rev []OpCode
	x, y := n, m
	for d := found; d > 0; d-- {
		k := x - y
		snap := trace[d]
		idx := func(kk int) int { return (kk + d - 1) / 2 }

		var prevK int
		if k == -d || (k != d && snap[idx(k-1)] < snap[idx(k+1)]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := snap[idx(prevK)]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			rev = append(rev, OpCode{OpEqual, x - 1, x, y - 1, y})
			x--
			y--
		}
		if prevK == k+1 {
			rev = append(rev, OpCode{OpInsert, x, x, y - 1, y})
		} else {
			rev = append(rev, OpCode{OpDelete, x - 1, x, y, y})
		}
		x, y = prevX, prevY
	}
	for x > 0 && y > 0 {
		rev = append(rev, OpCode{OpEqual, x - 1, x, y - 1, y})
		x--
		y--
	}

	// Reverse in place to forward order.
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// coalesce merges runs of unit opcodes. Contiguous delete+insert runs with no
// equal between them become a single replace region.
func coalesce(units []OpCode) []OpCode {
	var out []OpCode
	i := 0
	for i < len(units) {
		if units[i].Tag == OpEqual {
			j := i
			for j < len(units) && units[j].Tag == OpEqual {
				j++
			}
			out = append(out, OpCode{OpEqual, units[i].I1, units[j-1].I2, units[i].J1, units[j-1].J2})
			i = j
			continue
		}

		i1, i2 := units[i].I1, units[i].I2
		j1, j2 := units[i].J1, units[i].J2
		j := i + 1
		for j < len(units) && units[j].Tag != OpEqual {
			u := units[j]
			if u.I1 < i1 {
				i1 = u.I1
			}
			if u.I2 > i2 {
				i2 = u.I2
			}
			if u.J1 < j1 {
				j1 = u.J1
			}
			if u.J2 > j2 {
				j2 = u.J2
			}
			j++
		}
		tag := OpReplace
		if i2 == i1 {
			tag = OpInsert
		} else if j2 == j1 {
			tag = OpDelete
		}
		out = append(out, OpCode{tag, i1, i2, j1, j2})
		i = j
	}
	return out
}

func mergeAdjacentEqual(ops []OpCode) []OpCode {
	if len(ops) < 2 {
		return ops
	}
	out := ops[:1]
	for _, op := range ops[1:] {
		last := &out[len(out)-1]
		if op.Tag == OpEqual && last.Tag == OpEqual && last.I2 == op.I1 && last.J2 == op.J1 {
			last.I2 = op.I2
			last.J2 = op.J2
			continue
		}
		out = append(out, op)
	}
	return out
}

// InlineHTML renders the character-level diff of base and target as an HTML
// fragment: unchanged spans pass through unmodified, insertions are wrapped
// in <ins>, deletions in <del>. For a replace region the deletion is emitted
// first. Source characters pass through unescaped; callers own any escaping
// or sanitizing of the result.
func InlineHTML(base, target string) string {
	a := []rune(base)
	b := []rune(target)

	var sb strings.Builder
	for _, op := range opcodes(a, b) {
		switch op.Tag {
		case OpEqual:
			sb.WriteString(string(a[op.I1:op.I2]))
		case OpDelete:
			sb.WriteString("<del>")
			sb.WriteString(string(a[op.I1:op.I2]))
			sb.WriteString("</del>")
		case OpInsert:
			sb.WriteString("<ins>")
			sb.WriteString(string(b[op.J1:op.J2]))
			sb.WriteString("</ins>")
		case OpReplace:
			sb.WriteString("<del>")
			sb.WriteString(string(a[op.I1:op.I2]))
			sb.WriteString("</del><ins>")
			sb.WriteString(string(b[op.J1:op.J2]))
			sb.WriteString("</ins>")
		}
	}
	return sb.String()
}
