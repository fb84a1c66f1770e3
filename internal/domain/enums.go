package domain

import "fmt"

// SpanType represents the kind of work a span records
type SpanType string

const (
	SpanTypePrompt     SpanType = "prompt"
	SpanTypeChat       SpanType = "chat"
	SpanTypeExternal   SpanType = "external"
	SpanTypeCompletion SpanType = "completion"
	SpanTypeTool       SpanType = "tool"
	SpanTypeEmbedding  SpanType = "embedding"
	SpanTypeRetrieval  SpanType = "retrieval"
	SpanTypeReranking  SpanType = "reranking"
	SpanTypeHTTP       SpanType = "http"
	SpanTypeSegment    SpanType = "segment"
	SpanTypeUnknown    SpanType = "unknown"
)

// MainSpanTypes are the top-level units of a conversation
var MainSpanTypes = []SpanType{SpanTypePrompt, SpanTypeChat, SpanTypeExternal}

// IsValid checks if the span type is valid
func (t SpanType) IsValid() bool {
	switch t {
	case SpanTypePrompt, SpanTypeChat, SpanTypeExternal, SpanTypeCompletion,
		SpanTypeTool, SpanTypeEmbedding, SpanTypeRetrieval, SpanTypeReranking,
		SpanTypeHTTP, SpanTypeSegment, SpanTypeUnknown:
		return true
	}
	return false
}

// IsMain reports whether spans of this type are main spans
func (t SpanType) IsMain() bool {
	switch t {
	case SpanTypePrompt, SpanTypeChat, SpanTypeExternal:
		return true
	}
	return false
}

// ParseSpanType parses a span type, rejecting unknown values
func ParseSpanType(s string) (SpanType, error) {
	t := SpanType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown span type %q", s)
	}
	return t, nil
}

// SpanSource represents where a span originated
type SpanSource string

const (
	SpanSourceAPI                SpanSource = "api"
	SpanSourcePlayground         SpanSource = "playground"
	SpanSourceExperiment         SpanSource = "experiment"
	SpanSourceEvaluation         SpanSource = "evaluation"
	SpanSourceOptimization       SpanSource = "optimization"
	SpanSourceSharedPrompt       SpanSource = "shared_prompt"
	SpanSourceAgentAsTool        SpanSource = "agent_as_tool"
	SpanSourceEmailTrigger       SpanSource = "email_trigger"
	SpanSourceScheduledTrigger   SpanSource = "scheduled_trigger"
	SpanSourceIntegrationTrigger SpanSource = "integration_trigger"
)

// IsValid checks if the span source is valid
func (s SpanSource) IsValid() bool {
	switch s {
	case SpanSourceAPI, SpanSourcePlayground, SpanSourceExperiment, SpanSourceEvaluation,
		SpanSourceOptimization, SpanSourceSharedPrompt, SpanSourceAgentAsTool,
		SpanSourceEmailTrigger, SpanSourceScheduledTrigger, SpanSourceIntegrationTrigger:
		return true
	}
	return false
}

// ParseSpanSource parses a span source, rejecting unknown values
func ParseSpanSource(s string) (SpanSource, error) {
	src := SpanSource(s)
	if !src.IsValid() {
		return "", fmt.Errorf("unknown span source %q", s)
	}
	return src, nil
}

// SpanStatus represents the outcome of a span
type SpanStatus string

const (
	SpanStatusOk    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
	SpanStatusUnset SpanStatus = "unset"
)

// IsValid checks if the span status is valid
func (s SpanStatus) IsValid() bool {
	switch s {
	case SpanStatusOk, SpanStatusError, SpanStatusUnset:
		return true
	}
	return false
}

// EvaluationType represents how an evaluation result was produced
type EvaluationType string

const (
	EvaluationTypeLLM   EvaluationType = "llm"
	EvaluationTypeRule  EvaluationType = "rule"
	EvaluationTypeHuman EvaluationType = "human"
)

// IsAnnotation reports whether results of this type are human annotations
func (t EvaluationType) IsAnnotation() bool {
	return t == EvaluationTypeHuman
}
