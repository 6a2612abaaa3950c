// internal/pipeline/prompt.go
package pipeline

import (
	"fmt"
	"strings"

	"github.com/user/mastopilot/internal/types"
	"github.com/user/mastopilot/pkg/llm"
)

const postSystemPrompt = `You are a social media content creator. Based on the provided documents, create an engaging Mastodon post.

Guidelines:
- Create a single, engaging Mastodon post (MUST be %d characters or less - this is a hard limit)
- Make it shareable and engaging
- Use hashtags strategically (2-5 relevant hashtags)
- Maintain the key messages from the source material
- Write in a conversational, authentic tone
- Do NOT include any numbering or formatting like "1.", "2.", etc. - just write the post directly
- IMPORTANT: Keep your response under %d characters total`

const replySystemPrompt = `You are a helpful assistant that crafts engaging, authentic replies to social media posts.
Generate a single thoughtful reply that:
- Is concise and conversational (under %d characters - this is a hard limit)
- Adds value to the conversation
- Is authentic and personable
- References specific parts of the original post when relevant
- Includes relevant hashtags if appropriate (1-3 max)
Write just the reply text, nothing else.`

const imageSystemPrompt = `You create short prompts for an image generation model.
Given a social media post, describe a single striking illustration for it in one sentence.
Mention style, subject and mood. Do not include any text or lettering in the image description.`

// postMessages builds the completion request for a new post about a
// document, with optional supporting passages.
func postMessages(doc *types.Document, passages []types.Passage, charLimit int) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Based on the following documents, create a Mastodon post (max %d characters):\n\n", charLimit)
	sb.WriteString(doc.Content)
	if len(passages) > 0 {
		sb.WriteString("\n\nRelated context:\n")
		for _, p := range passages {
			fmt.Fprintf(&sb, "\n---\n%s", p.Text)
		}
	}
	fmt.Fprintf(&sb, "\n\nGenerate the post now (just the post text, no numbering or extra formatting, under %d characters):", charLimit)

	return []llm.Message{
		{Role: "system", Content: fmt.Sprintf(postSystemPrompt, charLimit, charLimit)},
		{Role: "user", Content: sb.String()},
	}
}

// replyMessages builds the completion request for a reply to a mention,
// with optional background passages.
func replyMessages(n types.Notification, passages []types.Passage, charLimit int) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reply to this post from @%s:\n\n%s\n", n.Author, n.Text)
	if len(passages) > 0 {
		sb.WriteString("\nBackground about us, for reference:\n")
		for _, p := range passages {
			fmt.Fprintf(&sb, "\n---\n%s", p.Text)
		}
	}
	fmt.Fprintf(&sb, "\nWrite the reply now (under %d characters):", charLimit)

	return []llm.Message{
		{Role: "system", Content: fmt.Sprintf(replySystemPrompt, charLimit)},
		{Role: "user", Content: sb.String()},
	}
}

// imageMessages builds the completion request that derives an image prompt
// from a generated post.
func imageMessages(postText string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: imageSystemPrompt},
		{Role: "user", Content: "Post:\n" + postText + "\n\nImage description:"},
	}
}
