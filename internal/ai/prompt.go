package ai

import "fmt"

// TagVocabulary is the closed set of categories offered to the model. It is
// advisory prompt guidance only; whatever tags come back are accepted.
var TagVocabulary = []string{
	"client wants to buy",
	"wrong number",
	"needs follow-up",
	"voicemail",
	"complaint",
	"inquiry",
	"support request",
	"sale completed",
	"appointment scheduled",
}

// BuildPrompt builds the system and user prompts for transcript analysis
func BuildPrompt(transcript string) (string, string) {
	systemPrompt := "You are a helpful assistant that analyzes call transcripts and extracts key information."

	userPrompt := fmt.Sprintf(`Analyze the following call transcript and provide:
1. A concise summary (2-3 sentences) of the call
2. A list of relevant tags from these categories: "client wants to buy", "wrong number", "needs follow-up", "voicemail", "complaint", "inquiry", "support request", "sale completed", "appointment scheduled"

Transcript:
%s

Respond in JSON format with this structure:
{
    "summary": "Your summary here",
    "tags": ["tag1", "tag2", "tag3"]
}`, transcript)

	return systemPrompt, userPrompt
}
