package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func msgAt(id string, origin Origin, ms int64) Message {
	return Message{ID: id, Origin: origin, Timestamp: time.UnixMilli(ms)}
}

func TestMerge_OrdersAcrossSources(t *testing.T) {
	chats := []Message{
		msgAt("c5", OriginChat, 5),
		msgAt("c1", OriginChat, 1),
		msgAt("c3", OriginChat, 3),
	}
	transcriptions := []Message{
		msgAt("t2", OriginTranscription, 2),
		msgAt("t4", OriginTranscription, 4),
	}

	merged := Merge(transcriptions, chats)

	ids := make([]string, 0, len(merged))
	for _, m := range merged {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"c1", "t2", "c3", "t4", "c5"}, ids)
}

func TestMerge_Idempotent(t *testing.T) {
	transcriptions := []Message{
		msgAt("t1", OriginTranscription, 10),
		msgAt("t2", OriginTranscription, 10),
	}
	chats := []Message{
		msgAt("c1", OriginChat, 10),
		msgAt("c2", OriginChat, 5),
	}

	first := Merge(transcriptions, chats)
	second := Merge(transcriptions, chats)
	require.Equal(t, first, second)
}

func TestMerge_EqualTimestampsKeepInputOrder(t *testing.T) {
	transcriptions := []Message{
		msgAt("t1", OriginTranscription, 7),
		msgAt("t2", OriginTranscription, 7),
	}
	chats := []Message{
		msgAt("c1", OriginChat, 7),
	}

	merged := Merge(transcriptions, chats)

	require.Equal(t, "t1", merged[0].ID)
	require.Equal(t, "t2", merged[1].ID)
	require.Equal(t, "c1", merged[2].ID)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	transcriptions := []Message{msgAt("t1", OriginTranscription, 9)}
	chats := []Message{msgAt("c1", OriginChat, 1)}

	_ = Merge(transcriptions, chats)

	require.Equal(t, "t1", transcriptions[0].ID)
	require.Equal(t, "c1", chats[0].ID)
}

func TestMerge_NoDeduplication(t *testing.T) {
	transcriptions := []Message{
		{ID: "t1", Origin: OriginTranscription, Text: "hello", Timestamp: time.UnixMilli(1)},
	}
	chats := []Message{
		{ID: "c1", Origin: OriginChat, Text: "hello", Timestamp: time.UnixMilli(1)},
	}

	merged := Merge(transcriptions, chats)
	require.Len(t, merged, 2)
}

func TestClassify_AgentBySubstring(t *testing.T) {
	c := NewClassifier()

	require.Equal(t, RoleAgent, c.Classify("voice-Agent-01"))
	require.Equal(t, RoleAgent, c.Classify("AGENT"))
	require.Equal(t, RolePatient, c.Classify("voice_assistant_user_42"))
	require.Equal(t, RolePatient, c.Classify(""))
}

func TestClassify_CustomMarkers(t *testing.T) {
	c := NewClassifier("assistant", "bot")

	require.Equal(t, RoleAgent, c.Classify("room-Bot-7"))
	require.Equal(t, RolePatient, c.Classify("agent-like-name"))
}
