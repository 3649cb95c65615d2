package utils

import (
	"strings"

	"github.com/erikdubbelboer/gspt"
)

// SetProcTitle sets the process title shown by ps and top. Extra parts are
// appended space separated.
func SetProcTitle(title string, parts ...string) {
	if len(parts) > 0 {
		title = title + " " + strings.Join(parts, " ")
	}
	gspt.SetProcTitle(title)
}
