package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/atelier/internal/config"
)

// Anthropic adapts the Anthropic Messages API for vision critique.
// Claude models read images but do not generate them, so GenerateImage
// and EditImage always fail with ErrNotImageCapable.
type Anthropic struct {
	cfg     config.AnthropicConfig
	tracker *TokenTracker
}

// NewAnthropic creates the Anthropic adapter from configuration.
func NewAnthropic(cfg config.AnthropicConfig) *Anthropic {
	return &Anthropic{cfg: cfg, tracker: NewTokenTracker()}
}

// Name implements Provider.
func (a *Anthropic) Name() string { return "anthropic" }

// Tracker returns the token tracker for this adapter.
func (a *Anthropic) Tracker() *TokenTracker { return a.tracker }

func (a *Anthropic) client(ctx context.Context) (anthropic.Client, error) {
	var opts []option.RequestOption

	if a.cfg.UseAWSBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if a.cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.AWSRegion))
		}
		if a.cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(a.cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if a.cfg.APIKey == "" {
			return anthropic.Client{}, errors.New("ANTHROPIC_API_KEY is not set")
		}
		opts = append(opts, option.WithAPIKey(a.cfg.APIKey))
	}

	return anthropic.NewClient(opts...), nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format: us.anthropic.{model}-v1:0.
func translateModelForBedrock(model string) string {
	if strings.HasPrefix(model, "us.anthropic.") {
		return model
	}
	return "us.anthropic." + model + "-v1:0"
}

// GenerateImage implements Provider. Claude cannot generate images.
func (a *Anthropic) GenerateImage(ctx context.Context, model string, req ImageRequest) ([]byte, error) {
	return nil, &Error{Provider: a.Name(), Model: model, Err: ErrNotImageCapable}
}

// EditImage implements Provider. Claude cannot edit images.
func (a *Anthropic) EditImage(ctx context.Context, model string, req EditRequest) ([]byte, error) {
	return nil, &Error{Provider: a.Name(), Model: model, Err: ErrNotImageCapable}
}

// Critique implements Provider via the Messages API with a base64
// image block ahead of the prompt text.
func (a *Anthropic) Critique(ctx context.Context, model string, req CritiqueRequest) (string, error) {
	client, err := a.client(ctx)
	if err != nil {
		return "", &Error{Provider: a.Name(), Model: model, Err: err}
	}

	if a.cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	mime := req.MimeType
	if mime == "" {
		mime = "image/png"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(req.Image)),
				anthropic.NewTextBlock(req.Prompt),
			),
		},
	})
	if err != nil {
		return "", &Error{Provider: a.Name(), Model: model, Err: fmt.Errorf("API call failed: %w", err)}
	}

	a.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}
	return result.String(), nil
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a zeroed tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records usage from one API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Totals returns accumulated input tokens, output tokens, and call count.
func (t *TokenTracker) Totals() (input, output int64, calls int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok, t.calls
}
