package postgresql

import (
	"fmt"
	"strings"
)

// where collects AND-ed conditions with numbered placeholders.
type where struct {
	parts []string
	args  []interface{}
}

// add appends cond, replacing each "?" with the next placeholder bound to
// the matching arg.
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.parts = append(w.parts, cond)
}

func (w *where) String() string {
	if len(w.parts) == 0 {
		return "TRUE"
	}
	return strings.Join(w.parts, " AND ")
}
