package agent

import (
	"fmt"
	"strings"

	"github.com/recallhq/recall/internal/types"
)

const classifierInstruction = `You triage Slack messages for a memory-keeping agent.
Return a single JSON object with keys: shouldFormMemory (boolean),
shouldRespond (boolean), memoryType (one of joke, fact, moment,
preference, relationship, quote), significance (number in [0,1]), and
extractedEntities (array of strings). No text outside the JSON object.`

const responderInstruction = `You are a helpful channel companion. Answer the latest message
using the provided memories, history, and context. Keep it short and
conversational.`

func classifierPrompt(msg InboundMessage, history []types.BufferedMessage) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent messages:\n")
		for i := len(history) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "%s: %s\n", history[i].UserID, history[i].Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Message from %s: %s\n", msg.UserID, msg.Text)
	return b.String()
}

func responsePrompt(msg InboundMessage, memories []types.Memory, history []types.BufferedMessage, profile *types.UserProfile, vibe *types.ChannelVibe) string {
	var b strings.Builder
	if len(memories) > 0 {
		b.WriteString("Relevant memories:\n")
		for _, mem := range memories {
			fmt.Fprintf(&b, "- [%s] %s\n", mem.Kind, mem.Content)
		}
		b.WriteString("\n")
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for i := len(history) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "%s: %s\n", history[i].UserID, history[i].Text)
		}
		b.WriteString("\n")
	}
	if profile != nil && profile.Notes != "" {
		fmt.Fprintf(&b, "About %s: %s\n", displayName(profile), profile.Notes)
	}
	if vibe != nil && vibe.Vibe != "" {
		fmt.Fprintf(&b, "Channel vibe: %s\n", vibe.Vibe)
	}
	fmt.Fprintf(&b, "\nLatest message from %s: %s\n", msg.UserID, msg.Text)
	return b.String()
}

func displayName(profile *types.UserProfile) string {
	if profile.DisplayName != "" {
		return profile.DisplayName
	}
	return profile.UserID
}
