package core

import (
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/samber/lo"
)

// ExtractMentions returns every whitespace-separated token that starts with
// "@", without the "@". Trailing punctuation stays part of the mention.
func ExtractMentions(text string) []string {
	return lo.FilterMap(strings.Fields(text), func(tok string, _ int) (string, bool) {
		if len(tok) > 1 && tok[0] == '@' {
			return tok[1:], true
		}
		return "", false
	})
}

// onlineMentions keeps the mentions that name an online identity.
func onlineMentions(mentions []string, online []Identity) []string {
	if len(mentions) == 0 {
		return []string{}
	}
	names := mapset.NewSet()
	for _, id := range online {
		names.Add(strings.ToLower(id.Username))
	}
	return lo.Filter(mentions, func(m string, _ int) bool {
		return names.Contains(strings.ToLower(m))
	})
}
