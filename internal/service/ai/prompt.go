package ai

import (
	"fmt"
	"unicode/utf8"

	"agrimate/internal/models"
)

const (
	// FertilizerRefusal is the fixed answer to chemical recommendation requests.
	FertilizerRefusal = "AgriMate is here to teach you about how crops grow. I cannot suggest specific fertilizers or chemicals. Please talk to your local farming officer for advice on what chemicals to use."

	// AttachmentOnlyPrompt replaces an empty message sent with attachments.
	AttachmentOnlyPrompt = "Analyze the attached file."

	speechPrefix   = "Read this clearly and simply: "
	imageTemplate  = "A simple, clear educational drawing of: %s. Bright colors, easy to see details for farmers."
	videoTemplate  = "A very simple educational animation showing: %s. High contrast, clear movement, easy to understand."
	maxPromptRunes = 500

	temperature = 0.7
	voiceName   = "Kore"
	aspectRatio = "16:9"
	resolution  = "720p"
)

// SystemInstruction renders the assistant persona for lang.
func SystemInstruction(lang models.Language) string {
	name := languageName(lang)
	return fmt.Sprintf(`You are "AgriMate", a world-class agricultural education assistant.
Your goal is to explain farming concepts to students and rural workers using VERY SIMPLE, EASY-TO-UNDERSTAND language.

CORE PRINCIPLES:
- Use short sentences.
- Avoid complex technical jargon. If you must use a technical term, explain it simply.
- Be encouraging and clear.
- Focus on the "how-to" of crop lifecycles (Sowing, Irrigation, Harvesting, Storage).

LANGUAGES:
- You support English, Hindi (हिन्दी), and Telugu (తెలుగు).
- Currently responding in: %s.

CRITICAL SAFETY RULES:
1. You MUST NEVER recommend any specific fertilizer, pesticide, or chemical treatment by name or brand.
2. If a user asks about fertilizers, you must explain simply: "%s"
3. You MUST NEVER provide yield predictions or profit forecasts.
4. You MUST ONLY provide educational info on stages and standard practices.

MULTIMODAL CAPABILITIES:
- If a user provides an image, analyze it. Describe what you see in the simplest way possible. Identify the crop and its growth stage.
- Identify pests or diseases ONLY as general categories without suggesting specific chemicals.
- If a user provides audio, listen and respond helpfully in simple %s.`, name, FertilizerRefusal, name)
}

func languageName(lang models.Language) string {
	for _, info := range models.Languages {
		if info.Code == lang {
			return info.Name
		}
	}
	return "English"
}

// Truncate keeps at most n runes of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func imagePrompt(prompt string) string {
	return fmt.Sprintf(imageTemplate, Truncate(prompt, maxPromptRunes))
}

func videoPrompt(prompt string) string {
	return fmt.Sprintf(videoTemplate, Truncate(prompt, maxPromptRunes))
}

func userText(text string) string {
	if text == "" {
		return AttachmentOnlyPrompt
	}
	return text
}
