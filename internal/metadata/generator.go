// Package metadata derives a title and keyword set for one asset through
// the describe service.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

const defaultCallTimeout = 60 * time.Second

type Options struct {
	Describer     domain.Describer
	TitlePrompt   string
	KeywordPrompt string
	CallTimeout   time.Duration
	Category      string
	Releases      string
	Logger        *infra.Logger
}

// Generator issues the title and keyword prompts for an asset.
type Generator struct {
	describer     domain.Describer
	titlePrompt   string
	keywordPrompt string
	callTimeout   time.Duration
	category      string
	releases      string
	logger        *infra.Logger
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Describer == nil {
		return nil, errors.New("metadata: describer is required")
	}
	g := &Generator{
		describer:     opts.Describer,
		titlePrompt:   opts.TitlePrompt,
		keywordPrompt: opts.KeywordPrompt,
		callTimeout:   opts.CallTimeout,
		category:      opts.Category,
		releases:      opts.Releases,
		logger:        infra.OrDiscard(opts.Logger),
	}
	if g.titlePrompt == "" {
		g.titlePrompt = DefaultTitlePrompt
	}
	if g.keywordPrompt == "" {
		g.keywordPrompt = DefaultKeywordPrompt
	}
	if g.callTimeout <= 0 {
		g.callTimeout = defaultCallTimeout
	}
	return g, nil
}

// Generate returns the cleaned record for asset using cred. Any failed,
// timed out or empty call yields an error wrapping domain.ErrGenerationFailure.
func (g *Generator) Generate(ctx context.Context, asset domain.NormalizedAsset, cred domain.Credential) (domain.MetadataRecord, error) {
	rawTitle, err := g.describe(ctx, asset, cred, g.titlePrompt)
	if err != nil {
		return domain.MetadataRecord{}, fmt.Errorf("title: %w", err)
	}
	rawKeywords, err := g.describe(ctx, asset, cred, g.keywordPrompt)
	if err != nil {
		return domain.MetadataRecord{}, fmt.Errorf("keywords: %w", err)
	}

	title := CleanTitle(rawTitle)
	if title == "" {
		return domain.MetadataRecord{}, fmt.Errorf("%w: empty title for %s", domain.ErrGenerationFailure, asset.Source.Filename)
	}
	keywords := CleanKeywords(rawKeywords)
	if len(keywords) == 0 {
		return domain.MetadataRecord{}, fmt.Errorf("%w: no usable keywords for %s", domain.ErrGenerationFailure, asset.Source.Filename)
	}

	return domain.MetadataRecord{
		Title:          title,
		Keywords:       keywords,
		SourceFilename: asset.Source.Filename,
		Category:       g.category,
		Releases:       g.releases,
	}, nil
}

func (g *Generator) describe(ctx context.Context, asset domain.NormalizedAsset, cred domain.Credential, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	text, err := g.describer.Describe(callCtx, domain.DescribeRequest{
		Image:    asset.Data,
		MIME:     asset.Format,
		Prompt:   prompt,
		APIKey:   cred.Token,
		ItemName: asset.Source.Filename,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGenerationFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}
	if callCtx.Err() != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailure, callCtx.Err())
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrGenerationFailure)
	}
	return text, nil
}
