package interp

import (
	"testing"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts, err := splitStatements(`  get a ; echo "x;y # z" ; ls # trailing; ignored  `)
	require.NoError(t, err)
	assert.Equal(t, []string{`get a`, `echo "x;y # z"`, `ls`}, stmts)

	stmts, err = splitStatements("# only a comment")
	require.NoError(t, err)
	assert.Empty(t, stmts)

	stmts, err = splitStatements(`echo "a \" ; b"`)
	require.NoError(t, err)
	assert.Equal(t, []string{`echo "a \" ; b"`}, stmts)

	_, err = splitStatements(`echo "open`)
	assert.True(t, cnserr.Is(err, cnserr.KindArgument))
}

func TestTokenize(t *testing.T) {
	tokens, err := tokenize(`put net/a "two words" $x "$y" ""`)
	require.NoError(t, err)
	assert.Equal(t, []token{
		{text: "put"},
		{text: "net/a"},
		{text: "two words", quoted: true},
		{text: "$x"},
		{text: "$y", quoted: true},
		{text: "", quoted: true},
	}, tokens)

	tokens, err = tokenize(`echo "line\none" "q\"q"`)
	require.NoError(t, err)
	assert.Equal(t, "line\none", tokens[1].text)
	assert.Equal(t, `q"q`, tokens[2].text)

	_, err = tokenize(`echo "x`)
	assert.True(t, cnserr.Is(err, cnserr.KindArgument))
}
