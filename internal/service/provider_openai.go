package service

import (
	"encoding/json"
	"strings"
)

// OpenAIStreamChunkParser parses standard OpenAI-format streaming chunks
type OpenAIStreamChunkParser struct{}

// ParseChunk converts standard OpenAI chunk to generic StreamChunk
func (p *OpenAIStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var rawChunk struct {
		Choices []struct {
			Delta struct {
				Role    string `json:"role,omitempty"`
				Content string `json:"content,omitempty"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(data, &rawChunk); err != nil {
		return nil, err
	}

	chunk := &StreamChunk{}
	if len(rawChunk.Choices) > 0 {
		choice := rawChunk.Choices[0]
		chunk.Role = choice.Delta.Role
		chunk.Content = choice.Delta.Content
		chunk.Done = choice.FinishReason != nil && *choice.FinishReason != ""
	}
	return chunk, nil
}

// IsOpenAIProvider checks if the base URL is official OpenAI API
func IsOpenAIProvider(baseURL string) bool {
	return strings.Contains(baseURL, "api.openai.com")
}

// chunkParserFor picks the stream format by base URL. Unknown providers
// get the standard OpenAI format.
func chunkParserFor(baseURL string) StreamChunkParser {
	if IsNVIDIAProvider(baseURL) {
		return &NVIDIAStreamChunkParser{}
	}
	return &OpenAIStreamChunkParser{}
}
