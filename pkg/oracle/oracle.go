// Package oracle talks to the external text-generation service that
// proposes corrected Terraform for failed stages, and turns its raw
// answers into usable artifacts.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tfmend/tfmend/pkg/terraform"
)

// Client is the minimal text-generation capability the healer needs.
// Implementations must surface failures as errors, never panic.
type Client interface {
	// Generate sends a prompt and returns the raw response text.
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// FailureContext is the structured failure information handed to the
// oracle when a stage needs repair.
type FailureContext struct {
	// Stage is the name of the failed stage.
	Stage string

	// Stdout and Stderr are the failed invocation's output.
	Stdout string
	Stderr string

	// Artifact is the current provisioning source.
	Artifact string
}

// DefaultHealMaxTokens bounds the healed artifact response.
const DefaultHealMaxTokens = 2000

// DefaultGenerateMaxTokens bounds initial artifact generation.
const DefaultGenerateMaxTokens = 1200

// Healer wraps a Client with the fixed repair instruction contract and
// routes all output through the artifact cleaner.
type Healer struct {
	client    Client
	maxTokens int
	logger    zerolog.Logger
}

// NewHealer creates a healer. maxTokens <= 0 uses the default.
func NewHealer(client Client, maxTokens int, logger zerolog.Logger) *Healer {
	if maxTokens <= 0 {
		maxTokens = DefaultHealMaxTokens
	}
	return &Healer{client: client, maxTokens: maxTokens, logger: logger}
}

// Heal asks the oracle for a corrected artifact given failure context
// and returns the cleaned result. An empty cleaned artifact is an
// error: it means the oracle returned nothing usable.
func (h *Healer) Heal(ctx context.Context, fc FailureContext) (string, error) {
	prompt := buildHealPrompt(fc)

	h.logger.Warn().Str("stage", fc.Stage).Msg("requesting artifact repair from oracle")

	raw, err := h.client.Generate(ctx, prompt, h.maxTokens)
	if err != nil {
		return "", fmt.Errorf("oracle heal call failed: %w", err)
	}

	cleaned := terraform.Clean(raw)
	if cleaned == "" {
		return "", fmt.Errorf("oracle returned no usable artifact content")
	}

	h.logger.Info().Int("bytes", len(cleaned)).Msg("oracle returned healed artifact")
	return cleaned, nil
}

// GenerateArtifact produces an initial artifact from a natural-language
// request, cleaned the same way healed output is.
func (h *Healer) GenerateArtifact(ctx context.Context, request string) (string, error) {
	prompt := buildGeneratePrompt(request)

	raw, err := h.client.Generate(ctx, prompt, DefaultGenerateMaxTokens)
	if err != nil {
		return "", fmt.Errorf("oracle generate call failed: %w", err)
	}

	cleaned := terraform.Clean(raw)
	if cleaned == "" {
		return "", fmt.Errorf("oracle returned no usable artifact content")
	}
	return cleaned, nil
}

// buildHealPrompt assembles the fixed-shape repair prompt: rules
// demanding artifact-only output, the failed stage, both output
// streams, and the current artifact.
func buildHealPrompt(fc FailureContext) string {
	var sb strings.Builder
	sb.WriteString("You are a Terraform and AWS specialist.\n")
	sb.WriteString("Fix ONLY the Terraform HCL.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- No markdown\n")
	sb.WriteString("- No explanations\n")
	sb.WriteString("- No backticks\n")
	sb.WriteString("- Return ONLY valid Terraform code\n\n")
	fmt.Fprintf(&sb, "Terraform failed at stage: %s\n\n", fc.Stage)
	fmt.Fprintf(&sb, "STDERR:\n%s\n\n", fc.Stderr)
	fmt.Fprintf(&sb, "STDOUT:\n%s\n\n", fc.Stdout)
	fmt.Fprintf(&sb, "Current Terraform code:\n%s\n\n", fc.Artifact)
	sb.WriteString("Fix EVERYTHING required for terraform init/plan/apply to succeed.\n")
	return sb.String()
}

func buildGeneratePrompt(request string) string {
	return "You are an AWS IaC expert.\n" +
		"Generate ONLY Terraform HCL. No markdown. No explanations.\n\n" +
		"User Request:\n" + request
}
