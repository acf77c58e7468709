package pipeline

import (
	"fmt"
	"strings"

	"newsroom/internal/domain"
	"newsroom/internal/providers/llm"
)

// Prompt builders for each provider-backed phase. The request shapes mirror
// how each phase consumes and produces text: research summarizes, drafting
// writes long-form, refine rewrites against reviewer issues, format emits
// publication markup.

func buildResearchRequest(job *domain.Job) llm.GenerateRequest {
	var b strings.Builder
	b.WriteString("Research the following topic for an upcoming article.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n", job.Topic)
	if job.Style != "" {
		fmt.Fprintf(&b, "Intended style: %s\n", job.Style)
	}
	b.WriteString("\nProduce a structured research brief: key facts, relevant context, ")
	b.WriteString("notable viewpoints and any figures worth citing. Be factual and concise.")

	return llm.GenerateRequest{
		System:      "You are a meticulous research assistant for a digital newsroom.",
		Prompt:      b.String(),
		MaxTokens:   maxTokensFor(job, 1.0),
		Temperature: 0.3,
	}
}

func buildDraftRequest(job *domain.Job, research string) llm.GenerateRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an article about: %s\n\n", job.Topic)
	if job.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", job.Style)
	}
	if job.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", job.Tone)
	}
	if job.TargetWords > 0 {
		fmt.Fprintf(&b, "Target length: about %d words\n", job.TargetWords)
	}
	if research != "" {
		b.WriteString("\nUse this research brief as your source material:\n\n")
		b.WriteString(research)
	}

	return llm.GenerateRequest{
		System:      "You are a professional writer producing publication-ready article drafts.",
		Prompt:      b.String(),
		MaxTokens:   maxTokensFor(job, 1.6),
		Temperature: 0.7,
	}
}

func buildRefineRequest(job *domain.Job, draft string, issues []string) llm.GenerateRequest {
	var b strings.Builder
	b.WriteString("Revise the article below. Address every reviewer issue while preserving ")
	b.WriteString("the original structure, style and target length.\n")
	if len(issues) > 0 {
		b.WriteString("\nReviewer issues:\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	b.WriteString("\nArticle:\n\n")
	b.WriteString(draft)
	b.WriteString("\n\nReturn the full revised article, not a summary of changes.")

	return llm.GenerateRequest{
		System:      "You are an editor revising article drafts against reviewer feedback.",
		Prompt:      b.String(),
		MaxTokens:   maxTokensFor(job, 1.6),
		Temperature: 0.5,
	}
}

func buildFormatRequest(job *domain.Job, content string) llm.GenerateRequest {
	var b strings.Builder
	b.WriteString("Format the article below for publication. Add a headline, a standfirst ")
	b.WriteString("and section headings, and produce clean Markdown. Do not change the ")
	b.WriteString("substance of the text.\n\nArticle:\n\n")
	b.WriteString(content)

	return llm.GenerateRequest{
		System:      "You are a sub-editor preparing copy for a CMS.",
		Prompt:      b.String(),
		MaxTokens:   maxTokensFor(job, 1.8),
		Temperature: 0.2,
	}
}

func buildQualityRequest(job *domain.Job, content string) llm.GenerateRequest {
	var b strings.Builder
	b.WriteString("Review the article below against the assignment and score it.\n\n")
	fmt.Fprintf(&b, "Assignment topic: %s\n", job.Topic)
	if job.Style != "" {
		fmt.Fprintf(&b, "Required style: %s\n", job.Style)
	}
	if job.Tone != "" {
		fmt.Fprintf(&b, "Required tone: %s\n", job.Tone)
	}
	if job.TargetWords > 0 {
		fmt.Fprintf(&b, "Target length: about %d words\n", job.TargetWords)
	}
	b.WriteString("\nRespond with a JSON object of the form ")
	b.WriteString(`{"score": <0.0-1.0>, "issues": ["...", "..."]}`)
	b.WriteString(" where score reflects overall quality and issues lists concrete problems.\n")
	b.WriteString("\nArticle:\n\n")
	b.WriteString(content)

	return llm.GenerateRequest{
		System:      "You are a strict quality reviewer. Respond only with the requested JSON.",
		Prompt:      b.String(),
		MaxTokens:   1024,
		Temperature: 0,
		JSONOutput:  true,
	}
}

// maxTokensFor sizes the completion budget from the job's target length with
// headroom for the phase's output shape.
func maxTokensFor(job *domain.Job, factor float64) int {
	words := job.TargetWords
	if words <= 0 {
		words = 800
	}
	tokens := int(float64(words) * 1.33 * factor)
	if tokens < 1024 {
		tokens = 1024
	}
	return tokens
}
