package conference

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMeetingLinksAreUniqueRooms(t *testing.T) {
	gen, err := NewGenerator("")
	require.NoError(t, err)

	first, second := gen.MeetingLink(), gen.MeetingLink()
	require.NotEqual(t, first, second)
	require.True(t, strings.HasPrefix(first, DefaultBaseURL))
	_, err = uuid.Parse(strings.TrimPrefix(first, DefaultBaseURL))
	require.NoError(t, err)
}

func TestBaseURLGetsTrailingSlash(t *testing.T) {
	gen, err := NewGenerator("https://video.example.com/rooms")
	require.NoError(t, err)
	gen.newID = func() string { return "abc" }
	require.Equal(t, "https://video.example.com/rooms/abc", gen.MeetingLink())
}

func TestRejectsInvalidBaseURL(t *testing.T) {
	for _, base := range []string{"meet.example.com", "ftp://meet.example.com/", "https://meet.example.com/?r=1", "https://"} {
		_, err := NewGenerator(base)
		require.Error(t, err, base)
	}
}
