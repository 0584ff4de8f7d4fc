package tokens

import (
	"errors"
	"testing"
)

func TestEstimateEncoder_Count(t *testing.T) {
	encoder := NewEstimateEncoder()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty string", "", 1},
		{"short text", "Hello", 1},
		{"medium text", "This is a test message", 6},
		{"classifier answer", "paper_search", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := encoder.Count(tt.text)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != tt.expected {
				t.Errorf("Count() = %v, want %v", count, tt.expected)
			}
		})
	}
}

func TestEstimateEncoder_EncodeDecode(t *testing.T) {
	encoder := NewEstimateEncoder()

	tokens, err := encoder.Encode("This is a test message")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(tokens) != 6 {
		t.Errorf("Encode() returned %d tokens, want 6", len(tokens))
	}

	empty, _ := encoder.Encode("")
	if len(empty) != 0 {
		t.Errorf("Encode(\"\") returned %d tokens, want 0", len(empty))
	}

	if _, err := encoder.Decode(tokens); err == nil {
		t.Error("Decode() expected error")
	}
}

type fixedEncoder struct {
	count int
	err   error
}

func (f fixedEncoder) Encode(text string) ([]int, error)   { return make([]int, f.count), f.err }
func (f fixedEncoder) Decode(tokens []int) (string, error) { return "", f.err }
func (f fixedEncoder) Count(text string) (int, error)      { return f.count, f.err }

func TestEncoderRegistry(t *testing.T) {
	registry := NewEstimateRegistry()
	registry.RegisterEncoder("router-model", fixedEncoder{count: 7})
	registry.RegisterEncoder("broken-model", fixedEncoder{err: errors.New("boom")})

	if got := registry.CountTokens("router-model", "anything"); got != 7 {
		t.Errorf("CountTokens() = %d, want 7", got)
	}
	if got := registry.CountTokens("broken-model", "Hello"); got != 1 {
		t.Errorf("CountTokens() with failing encoder = %d, want estimate 1", got)
	}
	if got := registry.CountTokens("unknown", "This is a test message"); got != 6 {
		t.Errorf("CountTokens() for unknown model = %d, want 6", got)
	}

	total := registry.CountTokensInMessages("router-model", []string{"a", "", "b"})
	if total != 14 {
		t.Errorf("CountTokensInMessages() = %d, want 14", total)
	}
}

func TestEncoderRegistryUnknownModelFallsBack(t *testing.T) {
	registry := NewEncoderRegistry()

	// tiktoken has no mapping for this name, so no encoding data is fetched
	encoder := registry.GetEncoder("local-llama-3")
	if _, ok := encoder.(*EstimateEncoder); !ok {
		t.Errorf("GetEncoder() = %T, want *EstimateEncoder", encoder)
	}
	if registry.GetEncoder("local-llama-3") != encoder {
		t.Error("GetEncoder() should cache the resolved encoder")
	}
}

func TestTiktokenEncoder_Count(t *testing.T) {
	encoder, err := NewTiktokenEncoder("cl100k_base")
	if err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}

	count, err := encoder.Count("Hello world")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}

	tokens, _ := encoder.Encode("Hello world")
	text, _ := encoder.Decode(tokens)
	if text != "Hello world" {
		t.Errorf("Decode(Encode()) = %q", text)
	}
}
