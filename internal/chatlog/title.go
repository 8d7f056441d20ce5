// Package chatlog implements the branch-and-append algorithm applied to a
// conversation log before it is persisted.
package chatlog

import (
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/chatlog-go/internal/models"
)

// titleWords is the number of leading words used for an auto-derived title.
const titleWords = 3

// DeriveTitle computes a display title from the first user message.
//
// The first three words are joined with single spaces. If that join is longer
// than models.MaxTitleLength characters, the first models.MaxTitleLength
// characters of the original input are returned instead.
func DeriveTitle(first string) string {
	words := strings.Fields(first)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	short := strings.Join(words, " ")

	if utf8.RuneCountInString(short) > models.MaxTitleLength {
		return truncateRunes(first, models.MaxTitleLength)
	}
	return short
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
