package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ShayCichocki/atelier/internal/config"
)

// OpenAI adapts the OpenAI Images and Chat APIs. It serves both image
// generation/editing and vision critique.
type OpenAI struct {
	cfg config.OpenAIConfig
}

// NewOpenAI creates the OpenAI adapter from configuration.
func NewOpenAI(cfg config.OpenAIConfig) *OpenAI {
	return &OpenAI{cfg: cfg}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) client() (openai.Client, error) {
	if o.cfg.APIKey == "" {
		return openai.Client{}, errors.New("OPENAI_API_KEY is not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(o.cfg.APIKey)}
	if o.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.cfg.BaseURL))
	}
	return openai.NewClient(opts...), nil
}

// GenerateImage implements Provider using the Images API. The response
// is requested as base64 so bytes land directly on disk without a
// second fetch.
func (o *OpenAI) GenerateImage(ctx context.Context, model string, req ImageRequest) ([]byte, error) {
	client, err := o.client()
	if err != nil {
		return nil, &Error{Provider: o.Name(), Model: model, Err: err}
	}

	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	}
	// dall-e models need the format spelled out; gpt-image-1 always
	// returns base64 and rejects the parameter.
	if model != "gpt-image-1" {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		return nil, &Error{Provider: o.Name(), Model: model, Err: err}
	}
	return decodeImageData(resp, o.Name(), model)
}

// EditImage implements Provider using the Images edit endpoint.
func (o *OpenAI) EditImage(ctx context.Context, model string, req EditRequest) ([]byte, error) {
	client, err := o.client()
	if err != nil {
		return nil, &Error{Provider: o.Name(), Model: model, Err: err}
	}

	mime := req.MimeType
	if mime == "" {
		mime = "image/png"
	}

	params := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(req.Image), "source.png", mime),
		},
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	}
	// Same format rule as GenerateImage: dall-e models default to URL
	// responses unless base64 is requested explicitly.
	if model != "gpt-image-1" {
		params.ResponseFormat = openai.ImageEditParamsResponseFormatB64JSON
	}

	resp, err := client.Images.Edit(ctx, params)
	if err != nil {
		return nil, &Error{Provider: o.Name(), Model: model, Err: err}
	}
	return decodeImageData(resp, o.Name(), model)
}

// Critique implements Provider using a vision chat completion.
func (o *OpenAI) Critique(ctx context.Context, model string, req CritiqueRequest) (string, error) {
	client, err := o.client()
	if err != nil {
		return "", &Error{Provider: o.Name(), Model: model, Err: err}
	}

	mime := req.MimeType
	if mime == "" {
		mime = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return "", &Error{Provider: o.Name(), Model: model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: o.Name(), Model: model, Err: errors.New("empty choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func decodeImageData(resp *openai.ImagesResponse, providerName, model string) ([]byte, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, &Error{Provider: providerName, Model: model, Err: errors.New("response carried no image data")}
	}
	if resp.Data[0].B64JSON == "" {
		return nil, &Error{Provider: providerName, Model: model, Err: errors.New("response carried no base64 payload")}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &Error{Provider: providerName, Model: model, Err: fmt.Errorf("decode image data: %w", err)}
	}
	return data, nil
}
