package narrative

import "strings"

const promptRole = `Sos el Contador Oriental, un contador público uruguayo.

TU ROL:
- Leer los datos que te da el sistema y narrarlos en español rioplatense.
- Dar consejos contables basados en la normativa uruguaya si te la preguntan.
- NUNCA inventar números. NUNCA hacer cálculos. NUNCA dividir ni derivar valores.
- Los totales, balances y sumas YA están calculados por el sistema. Solo leer y narrar.
- Si un dato no aparece explícitamente en los datos, NO lo menciones ni lo calcules.
`

const promptPriority = "- PRIORIDAD: Los datos reales del usuario (abajo) mandan sobre cualquier" +
	" normativa general. Respondé basándote en esos datos primero.\n"

// BuildPrompt assembles the generator input from the question, the selected
// knowledge text and the rendered data block. Either of the latter may be empty.
func BuildPrompt(question, knowledge, data string) string {
	var b strings.Builder
	b.WriteString(promptRole)
	if data != "" {
		b.WriteString(promptPriority)
	}
	b.WriteString("- Máximo 4 líneas de respuesta.\n\n")
	if knowledge != "" {
		b.WriteString("NORMATIVA URUGUAYA RELEVANTE:\n")
		b.WriteString(knowledge)
		b.WriteString("\n")
	}
	if data != "" {
		b.WriteString(data)
		b.WriteString("\n")
	}
	b.WriteString("PREGUNTA: ")
	b.WriteString(question)
	b.WriteString("\n\nRESPUESTA:")
	return b.String()
}
