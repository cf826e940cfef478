// Package nl2sql turns a sales question into a single read-only SQL
// statement with one call to a text-generation service.
package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/salesqa/salesqa/internal/history"
)

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Request struct {
	Question         string
	GroundingContext string
	History          []history.Turn
	// ErrorHint is the previous attempt's error text, empty on the first attempt.
	ErrorHint string
}

type Generator struct {
	gen TextGenerator
}

func NewGenerator(gen TextGenerator) (*Generator, error) {
	if gen == nil {
		return nil, fmt.Errorf("text generator is required")
	}
	return &Generator{gen: gen}, nil
}

// Generate issues exactly one generation call and returns the cleaned
// statement. The result is not validated here.
func (g *Generator) Generate(ctx context.Context, request Request) (string, error) {
	if strings.TrimSpace(request.Question) == "" {
		return "", fmt.Errorf("question is required")
	}
	raw, err := g.gen.Generate(ctx, BuildPrompt(request))
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	return CleanSQL(raw), nil
}
