package timeline

import "sort"

// Merge combines a transcription snapshot and a chat snapshot into one
// timeline ordered by timestamp ascending. It is a pure function of its two
// inputs: merging the same snapshots twice yields the same sequence, so
// callers can recompute on every source update instead of mutating
// incrementally.
//
// The sort is stable; messages with equal timestamps keep their input order
// (transcriptions ahead of chats, each in arrival order), which keeps the
// rendered timeline from flickering across re-merges. Nothing is deduplicated:
// a transcription fragment and a chat message with identical text stay two
// distinct entries.
func Merge(transcriptions, chats []Message) []Message {
	merged := make([]Message, 0, len(transcriptions)+len(chats))
	merged = append(merged, transcriptions...)
	merged = append(merged, chats...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}
