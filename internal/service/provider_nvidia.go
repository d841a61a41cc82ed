package service

import (
	"encoding/json"
	"strings"
)

// NVIDIAStreamChunkParser parses NVIDIA-hosted chunks, which carry model
// reasoning in a separate reasoning_content field
type NVIDIAStreamChunkParser struct{}

// ParseChunk converts NVIDIA/DeepSeek-specific chunk to generic StreamChunk
func (p *NVIDIAStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var rawChunk struct {
		Choices []struct {
			Delta struct {
				Role             string  `json:"role,omitempty"`
				Content          string  `json:"content,omitempty"`
				ReasoningContent *string `json:"reasoning_content,omitempty"` // DeepSeek thinking
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
		if choice.Delta.ReasoningContent != nil {
			chunk.ThinkingContent = *choice.Delta.ReasoningContent
		}
		chunk.Done = choice.FinishReason != nil && *choice.FinishReason != ""
	}
	return chunk, nil
}

// IsNVIDIAProvider checks if the base URL is NVIDIA API
func IsNVIDIAProvider(baseURL string) bool {
	return strings.Contains(baseURL, "integrate.api.nvidia.com")
}
