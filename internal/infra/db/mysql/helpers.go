package mysql

import (
	"errors"
	"strings"

	driver "github.com/go-sql-driver/mysql"
)

const errDuplicateEntry = 1062

// statements splits a schema file on ";" terminators, dropping blanks.
func statements(src string) []string {
	var out []string
	for _, s := range strings.Split(src, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isDuplicate(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}
