package rag

import (
	"context"
	"fmt"
	"strings"
)

// RefusalMessage is the exact answer given when the retrieved evidence
// does not support an answer.
const RefusalMessage = "Lo siento, no encontré información relevante sobre eso en el libro."

// SystemPrompt holds the model to the retrieved fragments.
const SystemPrompt = `Eres un asistente de preguntas y respuestas sobre un libro. Respondes usando ÚNICAMENTE la información de los fragmentos de contexto que recibes.

Reglas:
1. Lee cada fragmento y determina si contiene información directa y relevante para la pregunta.
2. Si los fragmentos responden la pregunta de forma clara y suficiente, redacta la respuesta basándote solo en ellos. Parafrasea o cita con precisión, de forma clara y concisa, en un lenguaje formal. Indica la fuente cuando sea posible: "Según el libro: ...".
3. No inventes datos, cifras, fechas ni hechos. No uses conocimiento general. No agregues información que no esté en los fragmentos.
4. Si no hay fragmentos, o si son ambiguos, incompletos o no responden directamente la pregunta, responde exactamente:
` + RefusalMessage + `
   En ese caso no agregues explicaciones, disculpas ni ninguna otra variación.

Tu única fuente de verdad son los fragmentos proporcionados.`

const userPromptTemplate = `
Responde la siguiente pregunta basándote SOLO en el contexto recuperado.

Pregunta:
%s

%s
`

// GenerationConfig fixes the sampling parameters of every answer.
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
}

// AnswerGenerator turns retrieved fragments into a grounded answer.
type AnswerGenerator struct {
	completer Completer
	cfg       GenerationConfig
}

// NewAnswerGenerator returns a generator backed by completer.
func NewAnswerGenerator(completer Completer, cfg GenerationConfig) *AnswerGenerator {
	return &AnswerGenerator{completer: completer, cfg: cfg}
}

// Answer returns the completion text verbatim. With no results it returns
// RefusalMessage without calling the model.
func (g *AnswerGenerator) Answer(ctx context.Context, query string, results []Result) (string, error) {
	if len(results) == 0 {
		return RefusalMessage, nil
	}

	answer, err := g.completer.Complete(ctx, CompletionRequest{
		System:      SystemPrompt,
		User:        UserPrompt(query, results),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", wrap(ErrGeneration, err)
	}
	return answer, nil
}

// ContextBlock numbers each document from 1 and separates them with a blank line.
func ContextBlock(results []Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, r.Document)
	}
	return strings.Join(parts, "\n\n")
}

// UserPrompt fills the question template. The context section is empty
// when there are no results.
func UserPrompt(query string, results []Result) string {
	contextSection := ""
	if len(results) > 0 {
		contextSection = "Contexto:\n" + ContextBlock(results)
	}
	return fmt.Sprintf(userPromptTemplate, query, contextSection)
}

// IsRefusal reports whether answer is the refusal sentence. Surrounding
// whitespace from the model is ignored.
func IsRefusal(answer string) bool {
	return strings.TrimSpace(answer) == RefusalMessage
}
