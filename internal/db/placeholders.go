package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder styles understood by the two backends.
type Style int

const (
	// Question leaves `?` markers as-is; used by the embedded backend.
	Question Style = iota
	// Dollar rewrites `?` markers to `$1..$n`; used by the client/server
	// backend.
	Dollar
)

// Translate rewrites the positional placeholders of query into the given
// style and validates their count against argc. The statement is tokenized
// rather than string-substituted, so `?` characters inside quoted literals,
// quoted identifiers, and comments are never touched.
func Translate(query string, style Style, argc int) (string, error) {
	var out strings.Builder
	out.Grow(len(query) + 8)

	count := 0
	i := 0
	for i < len(query) {
		c := query[i]
		switch c {
		case '\'', '"':
			// Quoted literal or identifier. Doubled quotes escape the
			// delimiter in both dialects.
			quote := c
			out.WriteByte(c)
			i++
			for i < len(query) {
				out.WriteByte(query[i])
				if query[i] == quote {
					if i+1 < len(query) && query[i+1] == quote {
						out.WriteByte(quote)
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				end := strings.IndexByte(query[i:], '\n')
				if end < 0 {
					out.WriteString(query[i:])
					i = len(query)
				} else {
					out.WriteString(query[i : i+end+1])
					i += end + 1
				}
			} else {
				out.WriteByte(c)
				i++
			}
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				end := strings.Index(query[i+2:], "*/")
				if end < 0 {
					out.WriteString(query[i:])
					i = len(query)
				} else {
					out.WriteString(query[i : i+2+end+2])
					i += 2 + end + 2
				}
			} else {
				out.WriteByte(c)
				i++
			}
		case '?':
			count++
			if style == Dollar {
				out.WriteByte('$')
				out.WriteString(strconv.Itoa(count))
			} else {
				out.WriteByte('?')
			}
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}

	if count != argc {
		return "", fmt.Errorf("statement has %d placeholders but %d parameters were supplied: %w", count, argc, ErrParamCount)
	}
	return out.String(), nil
}

// errRow defers a translation error until Scan, matching the QueryRow
// contract of both drivers.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// NewErrRow wraps err in a Row whose Scan returns it.
func NewErrRow(err error) Row { return errRow{err: err} }
