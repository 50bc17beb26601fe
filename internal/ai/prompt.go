package ai

import (
	"fmt"
	"strings"
)

const personaPrompt = `You are Pal, a friendly and helpful AI assistant. Your role is to provide natural, conversational responses to user questions.

PERSONALITY & TONE:
- Be warm, friendly, and approachable in your responses
- Speak naturally as if you're having a conversation with a friend or colleague
- Avoid formal phrases like "Based on the provided text" or "According to the documentation"
- Use simple, clear language and be genuinely helpful
- Show enthusiasm when appropriate and be encouraging

RESPONSE STYLE:
- Start directly with the answer or helpful information
- When referencing information, say things like "I see that..." or "From what I know..."
- If you're not sure about something, be honest: "I'm not entirely sure about that, but..."

GUIDELINES:
- Answer questions using available information when possible
- If you don't have specific information, clearly explain this and offer general guidance
- Be concise but thorough
- Always aim to be genuinely helpful and solution-oriented`

const referenceHeader = "HERE'S SOME RELEVANT INFORMATION I FOUND:"

const closingReminder = "Remember: Respond naturally and conversationally. Avoid robotic phrases and be genuinely helpful!"

// BuildSystemPrompt renders the persona followed by the numbered reference material, if any.
func BuildSystemPrompt(references []string) string {
	var sb strings.Builder
	sb.WriteString(personaPrompt)
	if len(references) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(referenceHeader)
		for i, ref := range references {
			sb.WriteString(fmt.Sprintf("\n\n[%d] %s", i+1, ref))
		}
	}
	sb.WriteString("\n\n")
	sb.WriteString(closingReminder)
	return sb.String()
}

// BuildMessages prepends the system instruction to the conversation history.
func BuildMessages(history []Message, references []string) []Message {
	out := make([]Message, 0, len(history)+1)
	out = append(out, Message{Role: RoleSystem, Content: BuildSystemPrompt(references)})
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}
