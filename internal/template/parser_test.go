package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TextAndExpressions(t *testing.T) {
	tmpl, err := Parse(`SELECT * FROM {{ ref('a') }} WHERE x = {{ config.meta["x"] }}`, "m.sql")
	require.NoError(t, err)
	require.Len(t, tmpl.Nodes, 4)

	assert.IsType(t, &Text{}, tmpl.Nodes[0])
	expr, ok := tmpl.Nodes[1].(*Expr)
	require.True(t, ok)
	assert.Equal(t, "ref('a')", expr.Source)
}

func TestParse_IfElifElse(t *testing.T) {
	tmpl, err := Parse(`{% if env == "prod" %}a{% elif env == "staging" %}b{% else %}c{% endif %}`, "m.sql")
	require.NoError(t, err)
	require.Len(t, tmpl.Nodes, 1)

	block, ok := tmpl.Nodes[0].(*If)
	require.True(t, ok)
	require.Len(t, block.Branches, 2)
	assert.Equal(t, `env == "prod"`, block.Branches[0].Condition)
	assert.Equal(t, `env == "staging"`, block.Branches[1].Condition)
	require.Len(t, block.Else, 1)
}

func TestParse_ForBlock(t *testing.T) {
	tmpl, err := Parse(`{% for col in config.meta["cols"] %}{{ col }},{% endfor %}`, "m.sql")
	require.NoError(t, err)
	require.Len(t, tmpl.Nodes, 1)

	block, ok := tmpl.Nodes[0].(*For)
	require.True(t, ok)
	assert.Equal(t, "col", block.Var)
	assert.Equal(t, `config.meta["cols"]`, block.Iter)
	assert.Len(t, block.Body, 2)
}

func TestParse_ForAcceptsTrailingColon(t *testing.T) {
	tmpl, err := Parse(`{% for x in xs: %}{{ x }}{% endfor %}`, "m.sql")
	require.NoError(t, err)
	block := tmpl.Nodes[0].(*For)
	assert.Equal(t, "xs", block.Iter)
}

func TestParse_NestedBlocks(t *testing.T) {
	tmpl, err := Parse(`{% if a %}{% for x in xs %}{{ x }}{% endfor %}{% endif %}`, "m.sql")
	require.NoError(t, err)

	block := tmpl.Nodes[0].(*If)
	require.Len(t, block.Branches[0].Body, 1)
	assert.IsType(t, &For{}, block.Branches[0].Body[0])
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"unclosed if", `{% if x %}a`, "endif"},
		{"unclosed for", `{% for x in xs %}a`, "endfor"},
		{"stray endif", `a{% endif %}`, "without matching"},
		{"stray else", `{% else %}`, "without matching"},
		{"unknown statement", `{% while x %}`, "unknown statement"},
		{"if without condition", `{% if %}a{% endif %}`, "condition"},
		{"malformed for", `{% for x %}a{% endfor %}`, "malformed"},
		{"empty expression", `{{ }}`, "empty expression"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.input, "m.sql")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParse_ErrorCarriesPosition(t *testing.T) {
	_, err := Parse("line one\n{% endfor %}", "m.sql")
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Pos.Line)
}
