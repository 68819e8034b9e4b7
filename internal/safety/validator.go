// Package safety guards generated read statements before they reach a data
// source. Every statement must be a single bounded SELECT.
package safety

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ErrRejected matches every *Rejection via errors.Is.
var ErrRejected = errors.New("query rejected")

// Rejection codes.
const (
	CodeEmpty              = "empty"
	CodeForbiddenKeyword   = "forbidden_keyword"
	CodeMultipleStatements = "multiple_statements"
	CodeParse              = "parse_error"
	CodeNotSelect          = "not_select"
	CodeLockingRead        = "locking_read"
	CodeMissingLimit       = "missing_limit"
	CodeInvalidLimit       = "invalid_limit"
)

// Rejection explains why a statement failed validation.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("query rejected (%s): %s", r.Code, r.Reason)
}

func (r *Rejection) Is(target error) bool { return target == ErrRejected }

func reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// UnboundedPolicy decides what happens to a statement without a LIMIT.
type UnboundedPolicy string

const (
	// PolicyReject fails the statement.
	PolicyReject UnboundedPolicy = "reject"
	// PolicyAppend adds LIMIT <ceiling>.
	PolicyAppend UnboundedPolicy = "append"
)

func ParsePolicy(v string) (UnboundedPolicy, error) {
	switch UnboundedPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyAppend:
		return PolicyAppend, nil
	default:
		return "", fmt.Errorf("unknown unbounded query policy %q", v)
	}
}

// DefaultMaxLimit is the row ceiling applied when none is configured.
const DefaultMaxLimit = 30

// forbidden covers write, schema, privilege and session/admin keywords.
var forbidden = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|upsert|replace\s+into|create|alter|drop|truncate|rename|grant|revoke|set|use|lock|unlock|commit|rollback|begin|savepoint|kill|shutdown|call|exec|execute|load_file|outfile|dumpfile)\b`)

// SafeQuery is a statement that passed validation.
type SafeQuery struct {
	SQL      string
	Limit    int
	Clamped  bool
	Appended bool
}

// Result is the plain-data form of a validation outcome.
type Result struct {
	OK     bool   `json:"ok"`
	Query  string `json:"query"`
	Reason string `json:"reason,omitempty"`
}

// Validator is stateless and safe for concurrent use.
type Validator struct {
	maxLimit int
	policy   UnboundedPolicy
}

func New(maxLimit int, policy UnboundedPolicy) *Validator {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if policy == "" {
		policy = PolicyReject
	}
	return &Validator{maxLimit: maxLimit, policy: policy}
}

func (v *Validator) MaxLimit() int { return v.maxLimit }

func (v *Validator) Policy() UnboundedPolicy { return v.policy }

// Check wraps Validate in the {ok, query, reason} shape.
func (v *Validator) Check(query string) Result {
	safe, err := v.Validate(query)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			return Result{OK: false, Query: query, Reason: rej.Reason}
		}
		return Result{OK: false, Query: query, Reason: err.Error()}
	}
	return Result{OK: true, Query: safe.SQL}
}

// Validate accepts exactly one bounded SELECT-class statement. An oversized
// LIMIT is clamped to the ceiling. Clamping and appending edit the original
// text in place; the parser's MySQL rendering would turn double-quoted
// identifiers into string literals on SQLite and Postgres.
func (v *Validator) Validate(query string) (SafeQuery, error) {
	text := strings.TrimSpace(query)
	text = strings.TrimSpace(strings.TrimRight(text, "; \t\r\n"))
	if text == "" {
		return SafeQuery{}, reject(CodeEmpty, "statement is empty")
	}
	if m := forbidden.FindString(maskStrings(text)); m != "" {
		return SafeQuery{}, reject(CodeForbiddenKeyword, "statement contains forbidden keyword %q", strings.ToLower(m))
	}
	if multipleStatements(text) {
		return SafeQuery{}, reject(CodeMultipleStatements, "exactly one statement is allowed")
	}

	stmt, err := sqlparser.Parse(text)
	if err != nil {
		return SafeQuery{}, reject(CodeParse, "statement does not parse: %v", err)
	}

	limit, lock, err := selectParts(stmt)
	if err != nil {
		return SafeQuery{}, err
	}
	if lock != "" {
		return SafeQuery{}, reject(CodeLockingRead, "locking reads are not allowed")
	}

	if limit == nil || limit.Rowcount == nil {
		if v.policy != PolicyAppend {
			return SafeQuery{}, reject(CodeMissingLimit, "statement has no LIMIT; at most %d rows may be requested", v.maxLimit)
		}
		return SafeQuery{SQL: appendLimit(text, v.maxLimit), Limit: v.maxLimit, Appended: true}, nil
	}

	n, err := literalRowcount(limit.Rowcount)
	if err != nil {
		return SafeQuery{}, err
	}
	if n > v.maxLimit {
		clamped, ok := rewriteRowcount(text, v.maxLimit)
		if !ok {
			return SafeQuery{}, reject(CodeInvalidLimit, "LIMIT %d exceeds %d and could not be rewritten", n, v.maxLimit)
		}
		return SafeQuery{SQL: clamped, Limit: v.maxLimit, Clamped: true}, nil
	}
	return SafeQuery{SQL: text, Limit: n}, nil
}

// selectParts unwraps the statement into its outermost LIMIT and lock clause.
func selectParts(stmt sqlparser.Statement) (*sqlparser.Limit, string, error) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return s.Limit, s.Lock, nil
	case *sqlparser.Union:
		return s.Limit, s.Lock, nil
	case *sqlparser.ParenSelect:
		return selectParts(s.Select)
	default:
		return nil, "", reject(CodeNotSelect, "only SELECT statements are allowed, got %T", stmt)
	}
}

func literalRowcount(expr sqlparser.Expr) (int, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, reject(CodeInvalidLimit, "LIMIT must be an integer literal")
	}
	n, err := strconv.Atoi(string(val.Val))
	if err != nil || n < 0 {
		return 0, reject(CodeInvalidLimit, "LIMIT %q is not a valid row count", string(val.Val))
	}
	return n, nil
}

// multipleStatements reports whether any token other than a comment follows a
// statement separator.
func multipleStatements(text string) bool {
	tkn := sqlparser.NewStringTokenizer(text)
	separated := false
	for {
		typ, _ := tkn.Scan()
		switch typ {
		case 0:
			return false
		case sqlparser.LEX_ERROR:
			// Let the parser report it.
			return false
		case sqlparser.COMMENT:
			continue
		case ';':
			separated = true
		default:
			if separated {
				return true
			}
		}
	}
}
