package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractMentions(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"hey @Carol and @dave!", []string{"Carol", "dave!"}},
		{"hello @bob", []string{"bob"}},
		{"no mentions here", []string{}},
		{"lonely @ sign", []string{}},
		{"mail me at bob@example.com", []string{}},
		{"@a @a", []string{"a", "a"}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ExtractMentions(tc.in), tc.in)
	}
}

func TestOnlineMentions(t *testing.T) {
	online := []Identity{{Username: "Carol"}, {Username: "bob"}}

	got := onlineMentions([]string{"carol", "dave!", "bob"}, online)
	require.Equal(t, []string{"carol", "bob"}, got)
	require.Equal(t, []string{}, onlineMentions(nil, online))
}
