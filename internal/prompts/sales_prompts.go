// Package prompts holds the conversation instructions for the outbound sales
// agent and the post-call analysis request.
package prompts

import "fmt"

// Spoken fragments for the telephony leg. These are intentionally short:
// everything here is read aloud over a phone call.
const (
	// FallbackUtterance is spoken through the provider's native voice when
	// the AI reply pipeline times out or fails.
	FallbackUtterance = "Disculpa, ¿me lo puedes repetir por favor?"

	// GoodbyeUtterance closes the call when no speech is detected.
	GoodbyeUtterance = "Gracias por tu tiempo. ¡Que tengas un buen día!"

	// GreetingFallbackUtterance is the native-speech greeting used when no
	// synthesized greeting artifact is available in time.
	GreetingFallbackUtterance = "Hola, te llamo de parte del equipo comercial. ¿Cómo estás?"
)

// Greeting returns the templated first utterance for a lead. The same text is
// synthesized speculatively before the call connects.
func Greeting(leadName string) string {
	if leadName == "" {
		return "¡Hola! Soy Ana, del equipo comercial. ¿Cómo estás hoy? Te llamo porque tenemos algo que te puede interesar."
	}
	return fmt.Sprintf("¡Hola %s! Soy Ana, del equipo comercial. ¿Cómo estás hoy? Te llamo porque tenemos algo que te puede interesar.", leadName)
}

// SalesSystemPrompt instructs the model for the live conversation. Replies
// must stay short: they are converted to audio and played on a phone call.
func SalesSystemPrompt(leadName string) string {
	prompt := `Eres Ana, una asesora comercial amable y natural en una llamada telefónica de ventas.

REGLAS:
- Respuestas CORTAS: máximo 2 o 3 frases, esto es una llamada de voz.
- Tono cálido y conversacional, nunca robótico.
- Escucha las objeciones y respóndelas con empatía, sin presionar.
- Si la persona muestra interés, ofrece que un asesor humano le dé seguimiento.
- Si la persona no está interesada, agradece su tiempo y despídete con cortesía.
- Nunca inventes precios ni condiciones que no conozcas.`

	if leadName != "" {
		prompt += fmt.Sprintf("\n\nEl nombre del cliente es %s; úsalo de forma natural, sin repetirlo en cada frase.", leadName)
	}
	return prompt
}

// AnalysisPrompt asks the model for a structured verdict on a finished call.
// The reply must contain a JSON object; the analyzer tolerates surrounding
// prose.
const AnalysisPrompt = `Analiza la siguiente transcripción de una llamada comercial y responde ÚNICAMENTE con un objeto JSON con esta forma exacta:

{
  "interest_level": "high" | "medium" | "low" | "unknown",
  "objections": ["..."],
  "key_points": ["..."],
  "next_action": "...",
  "human_followup_needed": true | false,
  "priority": "high" | "normal",
  "summary": "resumen en una o dos frases"
}

Criterios: interest_level "high" si el cliente pidió más información, precios o una visita; "low" si rechazó la oferta; human_followup_needed true si un asesor humano debe llamar. priority "high" cuando el interés es alto o hay una objeción que un humano puede resolver.

Transcripción:
`
