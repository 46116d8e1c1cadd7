package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExcerpt(t *testing.T) {
	exactly := strings.Repeat("a", 100)
	long := strings.Repeat("b", 150)
	accented := strings.Repeat("é", 101)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", ""},
		{"short", "hello", "hello"},
		{"exactly one hundred", exactly, exactly},
		{"longer than one hundred", long, strings.Repeat("b", 100) + "..."},
		{"counts characters not bytes", accented, strings.Repeat("é", 100) + "..."},
		{"ignores word boundaries", strings.Repeat("word ", 25), strings.Repeat("word ", 20) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Excerpt(tt.content))
		})
	}
}

func TestConversation_OtherParticipant(t *testing.T) {
	c := Conversation{ID: "c", MemberOneID: "a", MemberTwoID: "b"}

	other, ok := c.OtherParticipant("a")
	require.True(t, ok)
	require.Equal(t, "b", other)

	other, ok = c.OtherParticipant("b")
	require.True(t, ok)
	require.Equal(t, "a", other)

	_, ok = c.OtherParticipant("z")
	require.False(t, ok)
}
