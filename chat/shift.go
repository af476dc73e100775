package chat

import (
	"fmt"
	"log"
	"slices"
)

// contextShift evicts old conversation turns until the rendered history fits
// in half the context window. It preserves the system message, the first
// user exchange, and the most recent keepRecentTurns user turns. Deletion
// happens in doubling batches, each snapped forward so a user message and
// its replies leave together; this can overshoot the target for some
// conversation shapes, which is accepted. The candidate list is a clone and
// is committed only when the whole shift succeeds.
func (w *worker) contextShift() error {
	log.Printf("chat: context shift, evicting to %d tokens", w.ctx.Capacity()/2)
	target := w.ctx.Capacity() / 2
	messages := slices.Clone(w.messages)

	systemEnd := 0
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		systemEnd = 1
	}
	firstUser, ok := nextUserIndex(messages, systemEnd)
	if !ok {
		return fmt.Errorf("%w: no user message in history", ErrShift)
	}
	firstDeletable, ok := nextUserIndex(messages, firstUser+1)
	if !ok {
		return fmt.Errorf("%w: no deletable messages", ErrShift)
	}
	lastKept, ok := startOfLastUserTurns(messages, w.keepRecentTurns)
	if !ok {
		return fmt.Errorf("%w: fewer than %d user turns in history", ErrShift, w.keepRecentTurns)
	}
	lastDeletable := lastKept - 1

	batch := 2
	for firstDeletable <= lastDeletable {
		tokens, err := w.renderTokensOf(messages)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrShift, err)
		}
		if len(tokens) <= target {
			break
		}

		batchEnd := min(firstDeletable+batch-1, lastDeletable)
		// Snap forward to just before the next user message so a user
		// turn is never split from its replies.
		nextUser, ok := nextUserIndex(messages, batchEnd+1)
		if !ok {
			return fmt.Errorf("%w: no user message after index %d", ErrShift, batchEnd)
		}
		end := min(nextUser-1, lastDeletable)

		deleted := end - firstDeletable + 1
		messages = slices.Delete(messages, firstDeletable, end+1)
		lastDeletable -= deleted
		batch *= 2
	}

	w.messages = messages
	return nil
}

// nextUserIndex returns the index of the first user message at or after
// start.
func nextUserIndex(messages []Message, start int) (int, bool) {
	for i := start; i < len(messages); i++ {
		if i >= 0 && messages[i].Role == RoleUser {
			return i, true
		}
	}
	return 0, false
}

// startOfLastUserTurns returns the index of the n-th most recent user
// message.
func startOfLastUserTurns(messages []Message, n int) (int, bool) {
	var userIndices []int
	for i, m := range messages {
		if m.Role == RoleUser {
			userIndices = append(userIndices, i)
		}
	}
	if len(userIndices) < n {
		return 0, false
	}
	return userIndices[len(userIndices)-n], true
}
