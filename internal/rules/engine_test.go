package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseExprOperators(t *testing.T) {
	ctx := Context{
		"damage.count":        float64(7),
		"parts.missing_count": float64(0),
		"color.mismatch":      true,
		"quality.ok":          false,
		"slot":                "front",
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"damage.count > 5", true},
		{"damage.count >= 7", true},
		{"damage.count < 5", false},
		{"damage.count <= 7", true},
		{"damage.count == 7", true},
		{"damage.count != 7", false},
		{"parts.missing_count == 0 and damage.count > 5", true},
		{"parts.missing_count > 0 or damage.count > 5", true},
		{"not quality.ok", true},
		{"!quality.ok", true},
		{"quality.ok && color.mismatch", false},
		{"quality.ok || color.mismatch", true},
		{"damage.count + 3 == 10", true},
		{"damage.count * 2 > 13", true},
		{"damage.count - 7 == 0", true},
		{"damage.count / 7 == 1", true},
		{"damage.count % 2 == 1", true},
		{"-damage.count < 0", true},
		{"(damage.count > 100 or parts.missing_count == 0) and color.mismatch", true},
		{`slot == "front"`, true},
		{`slot != "rear"`, true},
		{"color.mismatch == true", true},
		{"damage.count", true},
		{"parts.missing_count", false},
	}

	for _, tt := range tests {
		expr, err := parseExpr(tt.expr)
		require.NoError(t, err, "expression %q", tt.expr)

		v, err := expr.eval(ctx)
		require.NoError(t, err, "expression %q", tt.expr)
		got, err := truthy(v)
		require.NoError(t, err, "expression %q", tt.expr)
		require.Equal(t, tt.want, got, "expression %q", tt.expr)
	}
}

func TestParseExprRejectsUnsafeConstructs(t *testing.T) {
	unsafe := []string{
		"len(damage.count)",
		"exec(1)",
		"damage.count(1)",
		"damage[0]",
		"damage.count = 5",
		"a & b",
		"a | b",
		"",
		"damage.count >",
		"(damage.count > 1",
	}
	for _, expr := range unsafe {
		_, err := parseExpr(expr)
		require.Error(t, err, "expression %q should not parse", expr)
	}
}

func TestEvaluateErrorsAreNonMatching(t *testing.T) {
	path := writeRules(t, `
fraud:
  - id: UNKNOWN_IDENT
    when: no.such.key > 1
  - id: TYPE_MISMATCH
    when: slot > 3
review:
  - id: DIV_ZERO
    when: damage.count / zero > 1
  - id: MATCHES
    when: damage.count > 1
`)
	e, err := NewEngine(path)
	require.NoError(t, err)

	fraud, review := e.Evaluate(Context{
		"damage.count": float64(2),
		"slot":         "front",
		"zero":         float64(0),
	})
	require.Empty(t, fraud)
	require.Equal(t, []string{"MATCHES"}, review)
}

func TestUnparseableRuleIsDropped(t *testing.T) {
	path := writeRules(t, `
fraud:
  - id: BROKEN
    when: call(damage.count)
  - id: OK
    when: damage.count > 0
`)
	e, err := NewEngine(path)
	require.NoError(t, err)

	fraudCount, reviewCount := e.Counts()
	require.Equal(t, 1, fraudCount)
	require.Equal(t, 0, reviewCount)

	fraud, _ := e.Evaluate(Context{"damage.count": float64(1)})
	require.Equal(t, []string{"OK"}, fraud)
}

func TestMissingRulesFileGivesEmptySet(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	fraud, review := e.Evaluate(Context{"damage.count": float64(100)})
	require.Empty(t, fraud)
	require.Empty(t, review)
}

func TestReloadSwapsRuleSet(t *testing.T) {
	path := writeRules(t, `
fraud:
  - id: FIRST
    when: damage.count > 0
`)
	e, err := NewEngine(path)
	require.NoError(t, err)

	fraud, _ := e.Evaluate(Context{"damage.count": float64(1)})
	require.Equal(t, []string{"FIRST"}, fraud)

	require.NoError(t, os.WriteFile(path, []byte(`
fraud:
  - id: SECOND
    when: damage.count > 0
`), 0644))
	require.NoError(t, e.Reload())

	fraud, _ = e.Evaluate(Context{"damage.count": float64(1)})
	require.Equal(t, []string{"SECOND"}, fraud)
}

func TestReloadKeepsOldSetOnBadFile(t *testing.T) {
	path := writeRules(t, `
fraud:
  - id: KEEP
    when: damage.count > 0
`)
	e, err := NewEngine(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("fraud: [not: valid: yaml"), 0644))
	require.Error(t, e.Reload())

	fraud, _ := e.Evaluate(Context{"damage.count": float64(1)})
	require.Equal(t, []string{"KEEP"}, fraud)
}
