package safety

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsMutatingKeywords(t *testing.T) {
	v := New(30, PolicyReject)
	inputs := []string{
		"DROP TABLE x",
		"drop   table x",
		"DeLeTe FROM t WHERE 1=1",
		"SELECT a FROM t LIMIT 5; DROP TABLE t",
		"select a from t /* harmless */ limit 5; update t set a = 1",
		"INSERT INTO t VALUES (1)",
		"GRANT ALL ON t TO bob",
		"SELECT a INTO OUTFILE '/tmp/x' FROM t LIMIT 1",
		"TRUNCATE\tt",
	}
	for _, in := range inputs {
		_, err := v.Validate(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrRejected), in)
		var rej *Rejection
		require.True(t, errors.As(err, &rej))
		assert.Equal(t, CodeForbiddenKeyword, rej.Code, in)
	}
}

func TestValidateKeywordMatchIsWholeWord(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate("SELECT last_update, created_by FROM t LIMIT 5")
	require.NoError(t, err)
	assert.Equal(t, 5, q.Limit)
	assert.False(t, q.Clamped)
}

func TestValidateClampsOversizedLimit(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate("SELECT a FROM t LIMIT 500")
	require.NoError(t, err)
	assert.Equal(t, 30, q.Limit)
	assert.True(t, q.Clamped)
	assert.Contains(t, strings.ToLower(q.SQL), "limit 30")
	assert.NotContains(t, q.SQL, "500")
}

func TestValidateKeepsOffsetWhenClamping(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate("SELECT a FROM t LIMIT 10, 100")
	require.NoError(t, err)
	assert.Equal(t, 30, q.Limit)
	assert.Contains(t, strings.ToLower(q.SQL), "limit 10, 30")
}

func TestValidateClampKeepsOriginalText(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate(`SELECT "name", Status FROM projects WHERE "name" <> 'LIMIT 500' LIMIT 500`)
	require.NoError(t, err)
	assert.True(t, q.Clamped)
	assert.Equal(t, `SELECT "name", Status FROM projects WHERE "name" <> 'LIMIT 500' LIMIT 30`, q.SQL)
}

func TestValidateClampTargetsOuterLimit(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate("SELECT a FROM (SELECT a FROM t LIMIT 900) x LIMIT 400")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM (SELECT a FROM t LIMIT 900) x LIMIT 30", q.SQL)
}

func TestValidateAppendKeepsQuotingAndTrailingComment(t *testing.T) {
	v := New(30, PolicyAppend)
	q, err := v.Validate("SELECT \"name\" FROM projects -- all of them")
	require.NoError(t, err)
	assert.Equal(t, "SELECT \"name\" FROM projects LIMIT 30 -- all of them", q.SQL)
}

func TestValidateIgnoresKeywordsInsideStrings(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate("SELECT name FROM projects WHERE status = 'in use' LIMIT 5")
	require.NoError(t, err)
	assert.Equal(t, 5, q.Limit)

	_, err = v.Validate(`SELECT name FROM projects WHERE note = 'a\' ; drop table projects; --' LIMIT 5`)
	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CodeForbiddenKeyword, rej.Code)
}

func TestValidateAcceptsLimitWithinCeiling(t *testing.T) {
	v := New(30, PolicyReject)
	q, err := v.Validate("SELECT a FROM t WHERE b = 'x' ORDER BY a LIMIT 10;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM t WHERE b = 'x' ORDER BY a LIMIT 10", q.SQL)
	assert.Equal(t, 10, q.Limit)
}

func TestValidateUnboundedRejectPolicy(t *testing.T) {
	v := New(30, PolicyReject)
	_, err := v.Validate("SELECT a FROM t")
	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CodeMissingLimit, rej.Code)
}

func TestValidateUnboundedAppendPolicy(t *testing.T) {
	v := New(30, PolicyAppend)
	q, err := v.Validate("SELECT a FROM t")
	require.NoError(t, err)
	assert.True(t, q.Appended)
	assert.Equal(t, 30, q.Limit)
	assert.Contains(t, strings.ToLower(q.SQL), "limit 30")
}

func TestValidateRejectsNonSelectAndMalformed(t *testing.T) {
	v := New(30, PolicyReject)
	cases := map[string]string{
		"":                                  CodeEmpty,
		"   ;  ":                            CodeEmpty,
		"SELECT FROM WHERE":                 CodeParse,
		"SHOW TABLES":                       CodeNotSelect,
		"SELECT a FROM t LIMIT 1; SELECT 2": CodeMultipleStatements,
	}
	for in, code := range cases {
		_, err := v.Validate(in)
		var rej *Rejection
		require.True(t, errors.As(err, &rej), in)
		assert.Equal(t, code, rej.Code, in)
	}
}

func TestValidateUnionUsesOuterLimit(t *testing.T) {
	v := New(30, PolicyReject)
	_, err := v.Validate("SELECT a FROM t UNION SELECT a FROM u")
	require.ErrorIs(t, err, ErrRejected)

	q, err := v.Validate("SELECT a FROM t UNION SELECT a FROM u LIMIT 99")
	require.NoError(t, err)
	assert.Equal(t, 30, q.Limit)
}

func TestCheckShape(t *testing.T) {
	v := New(30, PolicyReject)
	ok := v.Check("SELECT a FROM t LIMIT 500")
	assert.True(t, ok.OK)
	assert.Empty(t, ok.Reason)

	bad := v.Check("drop table x")
	assert.False(t, bad.OK)
	assert.Equal(t, "drop table x", bad.Query)
	assert.Contains(t, bad.Reason, "drop")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)
	p, err = ParsePolicy("APPEND")
	require.NoError(t, err)
	assert.Equal(t, PolicyAppend, p)
	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}
