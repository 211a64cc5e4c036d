package ai

import (
	"fmt"
	"strings"
)

// topicPreviewLimit caps how much content the topic prompt includes.
const topicPreviewLimit = 2500

// TopicPrompt builds the user prompt for topic generation.
func TopicPrompt(content, pageTitle string, existingTopics []string, persona *Persona) string {
	existing := "None"
	if len(existingTopics) > 0 {
		existing = strings.Join(existingTopics, ", ")
	}

	preview := content
	ellipsis := ""
	if len(preview) > topicPreviewLimit {
		preview = preview[:topicPreviewLimit]
		ellipsis = "..."
	}

	characterContext := ""
	characterInstructions := ""
	if persona != nil && persona.IntroPrompt != "" && persona.EmotionPrompt != "" {
		characterContext = fmt.Sprintf("\n\nCharacter Context:\nYou are %s. %s", persona.IntroPrompt, persona.EmotionPrompt)
		characterInstructions = fmt.Sprintf(`
6. As %s, provide a brief, engaging comment about this content (1-2 sentences)
7. Select the most appropriate emotion from the available emotions that matches your comment
8. Your comment must be in the same language as the content you are analyzing`, persona.Name)
	}

	return fmt.Sprintf(`You are an expert content analyst. Your task is to generate relevant, specific topics based on the provided content.%s

Page Title: %s

Content to analyze:
%s%s

Existing topics that you can reuse if you need it:
%s

Instructions:
1. Generate 1-3 topics that are relevant to the content
2. Topics should be generic
3. First identify reusable topics from existing topics before creating new ones.
4. Topics should be concise (2-5 words each)
5. Focus on key concepts, themes, or subjects discussed in the content%s

Please provide your response as JSON.`, characterContext, pageTitle, preview, ellipsis, existing, characterInstructions)
}

// TopicSchema returns the response_format schema for topic generation.
func TopicSchema(includeCharacter bool) *JSONSchema {
	properties := map[string]interface{}{
		"topics": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":        "string",
				"description": "A relevant topic",
			},
			"minItems": 1,
			"maxItems": 6,
		},
	}
	required := []string{"topics"}

	if includeCharacter {
		properties["comment"] = map[string]interface{}{
			"type":        "string",
			"description": "Character AI comment about the content",
		}
		required = append(required, "comment")
	}

	return &JSONSchema{
		Name: "topic_generation_response",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

// QuizSystemPrompt builds the system prompt carrying the quiz
// instructions and the running summaries of earlier chunks.
func QuizSystemPrompt(instructions string, summaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert quiz creator. Follow these custom instructions: %s", instructions)

	if len(summaries) > 0 {
		b.WriteString("\n\nPrevious content summaries for context:\n")
		for i, s := range summaries {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + s)
		}
		b.WriteString("\n\nConsider the previous summaries for context but focus on new information in the current content chunk.")
	}
	return b.String()
}

// QuizPrompt builds the user prompt for one content chunk.
func QuizPrompt(pageTitle, content string) string {
	return fmt.Sprintf(`You are an expert quiz creator. Generate high-quality multiple-choice questions and a summary based on the provided content.

Page Title: %s

Content to analyze:
%s

Instructions:
1. Create 2-3 multiple-choice questions based on the content and custom instructions
2. Each question should have 4 options (A, B, C, D)
3. Only one option should be correct
4. Options should be without ambiguous options
5. Questions should test understanding, not just memorization
6. Provide clear explanations for why each option is correct or incorrect
7. Generate a concise summary (1-2 sentences) of the key points in this content chunk

Format your response as JSON with this exact structure:
{
  "questions": [
    {
      "question": "Question text here?",
      "options": [
        {"text": "Option A", "correct": true, "explanation": "Why this is correct"},
        {"text": "Option B", "correct": false, "explanation": "Why this is incorrect"},
        {"text": "Option C", "correct": false, "explanation": "Why this is incorrect"},
        {"text": "Option D", "correct": false, "explanation": "Why this is incorrect"}
      ]
    }
  ],
  "summary": "Concise summary of this content chunk"
}
`, pageTitle, content)
}

// QuizSchema returns the response_format schema for question generation.
func QuizSchema() *JSONSchema {
	optionSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The option text",
			},
			"correct": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether this option is correct",
			},
			"explanation": map[string]interface{}{
				"type":        "string",
				"description": "Explanation for why this option is correct or incorrect",
			},
		},
		"required":             []string{"text", "correct", "explanation"},
		"additionalProperties": false,
	}

	return &JSONSchema{
		Name: "quiz_generation_response",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"questions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"question": map[string]interface{}{
								"type":        "string",
								"description": "The quiz question text",
							},
							"options": map[string]interface{}{
								"type":     "array",
								"items":    optionSchema,
								"minItems": 4,
								"maxItems": 4,
							},
						},
						"required":             []string{"question", "options"},
						"additionalProperties": false,
					},
				},
				"summary": map[string]interface{}{
					"type":        "string",
					"description": "Concise summary of the content chunk",
				},
			},
			"required":             []string{"questions", "summary"},
			"additionalProperties": false,
		},
	}
}
