package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/openai/openai-go"

	"github.com/ShayCichocki/atelier/internal/config"
)

func TestSplitModel(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{name: "well formed", id: "openai:gpt-image-1", wantProvider: "openai", wantModel: "gpt-image-1"},
		{name: "model with colons", id: "anthropic:us.anthropic.claude-sonnet-4-20250514-v1:0", wantProvider: "anthropic", wantModel: "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{name: "missing separator", id: "gpt-image-1", wantErr: true},
		{name: "empty provider", id: ":gpt-image-1", wantErr: true},
		{name: "empty model", id: "openai:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m, err := SplitModel(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrBadModelID) {
					t.Errorf("SplitModel(%q) err = %v, want ErrBadModelID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitModel(%q) error = %v", tt.id, err)
			}
			if p != tt.wantProvider || m != tt.wantModel {
				t.Errorf("SplitModel(%q) = %q, %q", tt.id, p, m)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		id        string
		wantImage bool
		wantSight bool
	}{
		{"openai:gpt-image-1", true, false},
		{"openai:dall-e-3", true, false},
		{"openai:gpt-4o", false, true},
		{"anthropic:claude-sonnet-4-20250514", false, true},
		{"anthropic:claude-3-5-haiku-20241022", false, true},
		{"openai:gpt-image-2", true, false}, // prefix fallback
		{"unknown:whatever", false, false},
		{"malformed", false, false},
	}

	for _, tt := range tests {
		if got := ImageCapable(tt.id); got != tt.wantImage {
			t.Errorf("ImageCapable(%q) = %v, want %v", tt.id, got, tt.wantImage)
		}
		if got := VisionCapable(tt.id); got != tt.wantSight {
			t.Errorf("VisionCapable(%q) = %v, want %v", tt.id, got, tt.wantSight)
		}
	}
}

func TestDecodeImageData(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	tests := []struct {
		name    string
		resp    *openai.ImagesResponse
		want    string
		wantErr bool
	}{
		{name: "base64 payload", resp: &openai.ImagesResponse{Data: []openai.Image{{B64JSON: payload}}}, want: "png-bytes"},
		{name: "nil response", resp: nil, wantErr: true},
		{name: "no data", resp: &openai.ImagesResponse{}, wantErr: true},
		// A URL-mode response must not decode into an empty image.
		{name: "url without base64", resp: &openai.ImagesResponse{Data: []openai.Image{{URL: "https://images.example/out.png"}}}, wantErr: true},
		{name: "malformed base64", resp: &openai.ImagesResponse{Data: []openai.Image{{B64JSON: "%%%"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := decodeImageData(tt.resp, "openai", "dall-e-2")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeImageData() = %q, want error", data)
				}
				var perr *Error
				if !errors.As(err, &perr) {
					t.Errorf("error %v is not a provider error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeImageData() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("decodeImageData() = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(config.Default())

	p, model, err := r.Resolve("openai:gpt-image-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Name() != "openai" || model != "gpt-image-1" {
		t.Errorf("Resolve() = %s, %s", p.Name(), model)
	}

	if _, _, err := r.Resolve("mystery:model-x"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Resolve(unknown) err = %v, want ErrUnknownProvider", err)
	}
	if _, _, err := r.Resolve("noseparator"); !errors.Is(err, ErrBadModelID) {
		t.Errorf("Resolve(malformed) err = %v, want ErrBadModelID", err)
	}
}

func TestRetry(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Errorf("Retry() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("returns last error when budget exhausted", func(t *testing.T) {
		wantErr := errors.New("still broken")
		calls := 0
		err := Retry(context.Background(), 2, func() error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Errorf("Retry() error = %v, want %v", err, wantErr)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := Retry(ctx, 5, func() error {
			calls++
			return errors.New("nope")
		})
		if err == nil {
			t.Error("expected an error")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1 (no retries after cancel)", calls)
		}
	})
}

func TestAnthropic_NotImageCapable(t *testing.T) {
	a := NewAnthropic(config.AnthropicConfig{APIKey: "test"})

	_, err := a.GenerateImage(context.Background(), "claude-sonnet-4-20250514", ImageRequest{Prompt: "x"})
	if !errors.Is(err, ErrNotImageCapable) {
		t.Errorf("GenerateImage err = %v, want ErrNotImageCapable", err)
	}

	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatal("expected *provider.Error")
	}
	if pErr.Provider != "anthropic" {
		t.Errorf("Provider = %q", pErr.Provider)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock("claude-sonnet-4-20250514")
	want := "us.anthropic.claude-sonnet-4-20250514-v1:0"
	if got != want {
		t.Errorf("translateModelForBedrock() = %q, want %q", got, want)
	}

	// Already translated names pass through.
	if got := translateModelForBedrock(want); got != want {
		t.Errorf("double translation: %q", got)
	}
}
