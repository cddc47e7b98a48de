package annotators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/llm-gauge/internal/annotator"
	"github.com/giantswarm/llm-gauge/internal/cache"
	"github.com/giantswarm/llm-gauge/internal/prompt"
	"github.com/giantswarm/llm-gauge/internal/sut"
	"github.com/giantswarm/llm-gauge/internal/testutil"
)

func annotate(t *testing.T, a annotator.Annotator, expected, output string) annotator.Verdict {
	t.Helper()
	p := prompt.WithContext{Prompt: prompt.TextPrompt{Text: "q"}, Context: expected}
	req, err := a.TranslateRequest(p, sut.Completion{Text: output})
	require.NoError(t, err)
	resp, err := a.Annotate(context.Background(), cache.NewNoCache(), req)
	require.NoError(t, err)
	ann, err := a.TranslateResponse(req, resp)
	require.NoError(t, err)

	var v annotator.Verdict
	require.NoError(t, ann.Decode(&v))
	return v
}

func TestNewFactoryBuildsEveryType(t *testing.T) {
	judge := &testutil.MockLLMClient{DefaultResponse: "0 out of 1 answers are correct."}
	factory := NewFactory(judge)

	exactAnn, err := factory(Config{Key: "exact", Type: TypeExact, IgnoreCase: true})
	require.NoError(t, err)
	assert.True(t, annotate(t, exactAnn, "Yes", "yes").Correct)

	regexAnn, err := factory(Config{Key: "mentions", Type: TypeRegex, Pattern: "^y"})
	require.NoError(t, err)
	assert.True(t, annotate(t, regexAnn, "", "yes").Correct)

	judgeAnn, err := factory(Config{Key: "judge", Type: TypeLLMJudge, Model: "m"})
	require.NoError(t, err)
	assert.False(t, annotate(t, judgeAnn, "Yes", "yes").Correct)
	assert.Equal(t, "m", judge.LastRequest().Model)
}

func TestNewFactoryDefaultsToExact(t *testing.T) {
	a, err := NewFactory(nil)(Config{Key: "k"})
	require.NoError(t, err)
	assert.True(t, annotate(t, a, "x", "x").Correct)
}

func TestNewFactoryErrors(t *testing.T) {
	factory := NewFactory(nil)

	_, err := factory(Config{Key: "judge", Type: TypeLLMJudge})
	assert.ErrorContains(t, err, "no judge client")

	_, err = factory(Config{Key: "bad", Type: TypeRegex, Pattern: "("})
	assert.Error(t, err)

	_, err = factory(Config{Key: "x", Type: "telepathy"})
	var unsupported *UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "telepathy", unsupported.Type)
}
