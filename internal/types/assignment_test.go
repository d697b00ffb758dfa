package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkID_RoundTripWithUUIDTopic(t *testing.T) {
	topicID := "3f2a9c1e-7b4d-4e2a-9c1e-7b4d4e2a9c1e"
	workID := WorkID(topicID, "200")
	assert.Equal(t, "3f2a9c1e-7b4d-4e2a-9c1e-7b4d4e2a9c1e::200", workID)

	gotTopic, gotSerial, err := ParseWorkID(workID)
	require.NoError(t, err)
	assert.Equal(t, topicID, gotTopic)
	assert.Equal(t, "200", gotSerial)
}

func TestParseWorkID_Malformed(t *testing.T) {
	for _, in := range []string{"", "abc", "::200", "topic::", "topic-200"} {
		_, _, err := ParseWorkID(in)
		assert.Error(t, err, in)
	}
}

func TestNewAssignment(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewAssignment("t1", "p9", 2.5, now)
	assert.Equal(t, "t1::p9", a.WorkID)
	assert.Equal(t, 2.5, a.MatchScore)
	assert.Equal(t, now, a.CreatedAt)
}
