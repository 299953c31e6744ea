package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"nsfas-assistant/internal/domain"
)

type fakeModels struct {
	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
	resp        *genai.GenerateContentResponse
	err         error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = config
	return f.resp, f.err
}

type fakeTokens struct{ err error }

func (f fakeTokens) Token(context.Context) (string, error) { return "", f.err }

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, &genai.Part{Text: t})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.ErrorContains(t, err, "nil")

	_, err = New(context.Background(), fakeTokens{err: errors.New("no key")})
	require.ErrorContains(t, err, "no key")

	_, err = newWithModels(nil)
	require.Error(t, err)
}

func TestClient_Generate_SendsPartsAndConfig(t *testing.T) {
	fm := &fakeModels{resp: textResponse("Apply ", "online.")}
	c, err := newWithModels(fm, WithModel("gemini-test"))
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), []string{"persona", "Question: q", "Answer: "},
		domain.GenerateOptions{Temperature: 1, TopP: 0.95, TopK: 40, MaxOutputTokens: 100})
	require.NoError(t, err)
	require.Equal(t, "Apply online.", out)

	require.Equal(t, "gemini-test", fm.gotModel)
	require.Len(t, fm.gotContents, 1)
	require.Len(t, fm.gotContents[0].Parts, 3)
	require.Equal(t, "Question: q", fm.gotContents[0].Parts[1].Text)

	require.Equal(t, int32(100), fm.gotConfig.MaxOutputTokens)
	require.Equal(t, "text/plain", fm.gotConfig.ResponseMIMEType)
	require.NotNil(t, fm.gotConfig.TopK)
	require.Equal(t, float32(40), *fm.gotConfig.TopK)
	require.Equal(t, float32(1), *fm.gotConfig.Temperature)
}

func TestClient_Generate_DefaultModel(t *testing.T) {
	fm := &fakeModels{resp: textResponse("english")}
	c, err := newWithModels(fm, WithModel(" "))
	require.NoError(t, err)
	require.Equal(t, defaultModel, c.Model())

	_, err = c.Generate(context.Background(), []string{"x"}, domain.GenerateOptions{})
	require.NoError(t, err)
	require.Nil(t, fm.gotConfig.Temperature)
	require.Nil(t, fm.gotConfig.TopP)
}

func TestClient_Generate_Errors(t *testing.T) {
	c, err := newWithModels(&fakeModels{err: errors.New("quota")})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), []string{"x"}, domain.GenerateOptions{})
	require.ErrorContains(t, err, "quota")

	_, err = c.Generate(context.Background(), nil, domain.GenerateOptions{})
	require.ErrorContains(t, err, "prompt")

	c, err = newWithModels(&fakeModels{resp: &genai.GenerateContentResponse{}})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), []string{"x"}, domain.GenerateOptions{})
	require.ErrorContains(t, err, "empty response")
}

func TestCandidateText_SkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "zulu"},
		}}}},
	}
	require.Equal(t, "zulu", candidateText(resp))
	require.Equal(t, "", candidateText(nil))
}
