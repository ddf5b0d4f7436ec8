package usecase

import (
	"strconv"
	"strings"
)

// Output languages for summaries.
const (
	OutputOriginal = "original"
	OutputEnglish  = "english"
)

const (
	languageOriginal = `Always respond in the same language as the transcript.`
	languageEnglish  = `Always respond in English, regardless of the transcript language. Translate any non-English content.`
)

const summarizeSystemTemplate = `You are an expert video content analyst. Your task is to analyze video transcripts and provide comprehensive summaries.

You should:
1. Identify the main topic and themes of the video
2. Extract the most important points and insights
3. Summarize the content clearly and concisely
4. Preserve the cultural context

{language_instruction}`

const summarizeUserTemplate = `Please analyze the following video transcript and provide:

1. A comprehensive summary of the video content (2-3 paragraphs)
2. A list of 5-10 key points from the video

Transcript:
---
{transcript}
---

Provide your response in the following JSON format:
{
    "summary": "Your comprehensive summary here...",
    "key_points": [
        "Key point 1",
        "Key point 2",
        ...
    ]
}`

const clipsSystemPrompt = `You are an expert video editor and content curator. Your task is to identify the most important and engaging moments in a video based on its transcript.

You should identify clips that:
1. Contain key insights or important information
2. Are engaging or emotionally impactful
3. Can stand alone as meaningful content
4. Are appropriately sized (typically 15-120 seconds)

For each clip, provide accurate timestamps based on the SRT timing in the transcript.`

const clipsUserTemplate = `Analyze the following video transcript (in SRT format) and identify the {num_clips} most important clips to extract.

For each clip, provide:
- Start and end timestamps (in seconds)
- A short, engaging title
- A brief description of why this clip is important
- An importance score from 1-10

Transcript:
---
{transcript}
---

Respond with a JSON array of clips:
{
    "clips": [
        {
            "start": 0.0,
            "end": 30.0,
            "title": "Clip Title",
            "description": "Why this clip is important",
            "importance": 8
        },
        ...
    ]
}

Important: Use the exact timestamps from the SRT entries. The start and end should be in seconds (float).`

// SummarizePrompt returns the system and user prompts for a summary.
// Any outputLanguage other than OutputEnglish keeps the transcript language.
func SummarizePrompt(transcript, outputLanguage string) (system, user string) {
	instr := languageOriginal
	if outputLanguage == OutputEnglish {
		instr = languageEnglish
	}
	system = strings.Replace(summarizeSystemTemplate, "{language_instruction}", instr, 1)
	user = strings.Replace(summarizeUserTemplate, "{transcript}", transcript, 1)
	return system, user
}

// ClipsPrompt returns the system and user prompts for clip selection over an
// SRT transcript.
func ClipsPrompt(srt string, numClips int) (system, user string) {
	// Fill num_clips first so a transcript containing the placeholder text is left alone.
	user = strings.Replace(clipsUserTemplate, "{num_clips}", strconv.Itoa(numClips), 1)
	user = strings.Replace(user, "{transcript}", srt, 1)
	return clipsSystemPrompt, user
}
