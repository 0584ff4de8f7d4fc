package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder counts tokens for one model family
type Encoder interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	Count(text string) (int, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}
	return &TiktokenEncoder{encoding: encoding}, nil
}

// NewTiktokenEncoderForModel picks the encoding tiktoken associates with model
func NewTiktokenEncoderForModel(model string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
	}
	return &TiktokenEncoder{encoding: encoding}, nil
}

// Encode converts text to tokens
func (e *TiktokenEncoder) Encode(text string) ([]int, error) {
	return e.encoding.Encode(text, nil, nil), nil
}

// Decode converts tokens to text
func (e *TiktokenEncoder) Decode(tokens []int) (string, error) {
	return e.encoding.Decode(tokens), nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	return len(e.encoding.Encode(text, nil, nil)), nil
}

// EstimateEncoder approximates token counts at four characters per token.
// Used for models tiktoken does not know.
type EstimateEncoder struct{}

// NewEstimateEncoder creates a new estimating encoder
func NewEstimateEncoder() *EstimateEncoder {
	return &EstimateEncoder{}
}

// Encode returns placeholder token ids, one per estimated token
func (e *EstimateEncoder) Encode(text string) ([]int, error) {
	count := estimate(text)
	if text == "" {
		count = 0
	}
	tokens := make([]int, count)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens, nil
}

// Decode is not supported by estimates
func (e *EstimateEncoder) Decode(tokens []int) (string, error) {
	return "", fmt.Errorf("estimate encoder cannot decode")
}

// Count returns the estimated number of tokens in text, at least one
func (e *EstimateEncoder) Count(text string) (int, error) {
	return estimate(text), nil
}

func estimate(text string) int {
	count := (len(text) + 2) / 4
	if count < 1 {
		count = 1
	}
	return count
}

// EncoderRegistry resolves encoders per model, loading tiktoken encodings
// lazily and caching them. Safe for concurrent use.
type EncoderRegistry struct {
	mu       sync.Mutex
	encoders map[string]Encoder
	fallback Encoder
	resolve  func(model string) (Encoder, error)
}

// NewEncoderRegistry creates a registry that resolves unknown models through tiktoken
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{
		encoders: make(map[string]Encoder),
		fallback: NewEstimateEncoder(),
		resolve: func(model string) (Encoder, error) {
			return NewTiktokenEncoderForModel(model)
		},
	}
}

// NewEstimateRegistry creates a registry that never loads tiktoken data
func NewEstimateRegistry() *EncoderRegistry {
	r := NewEncoderRegistry()
	r.resolve = nil
	return r
}

// RegisterEncoder registers an encoder for a model
func (r *EncoderRegistry) RegisterEncoder(model string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[model] = encoder
}

// GetEncoder returns the encoder for a model, or the estimate when none can be loaded
func (r *EncoderRegistry) GetEncoder(model string) Encoder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if encoder, exists := r.encoders[model]; exists {
		return encoder
	}

	encoder := r.fallback
	if r.resolve != nil {
		if loaded, err := r.resolve(model); err == nil {
			encoder = loaded
		}
	}
	r.encoders[model] = encoder
	return encoder
}

// CountTokens counts tokens in text using the model's encoder
func (r *EncoderRegistry) CountTokens(model, text string) int {
	count, err := r.GetEncoder(model).Count(text)
	if err != nil {
		count, _ = r.fallback.Count(text)
	}
	return count
}

// CountTokensInMessages counts tokens in a list of messages
func (r *EncoderRegistry) CountTokensInMessages(model string, messages []string) int {
	total := 0
	for _, message := range messages {
		if message == "" {
			continue
		}
		total += r.CountTokens(model, message)
	}
	return total
}
