package base

import (
	"strconv"
	"strings"
)

// BindStyle - синтаксис плейсхолдеров СУБД
type BindStyle int

const (
	// BindQuestion - "?" (MySQL, SQLite)
	BindQuestion BindStyle = iota
	// BindDollar - "$1" (PostgreSQL)
	BindDollar
	// BindAtP - "@p1" (MS SQL Server)
	BindAtP
)

// Rebind переписывает "?" в синтаксис СУБД.
// "?" внутри строковых литералов в одинарных кавычках не трогаются.
func Rebind(style BindStyle, query string) string {
	if style == BindQuestion {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inString = !inString
			sb.WriteByte(ch)
		case ch == '?' && !inString:
			n++
			if style == BindDollar {
				sb.WriteByte('$')
			} else {
				sb.WriteString("@p")
			}
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String()
}
