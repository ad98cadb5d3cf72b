package chat

import (
	"fmt"
	"strings"

	"github.com/ashureev/mobilecoder/internal/domain"
)

// historyWindow is how many trailing turns are considered for prompt context.
const historyWindow = 10

// BuildPrompt renders the full prompt for a question. history is the transcript
// as it stood before the question was asked.
func BuildPrompt(persona domain.Persona, files []domain.FileNode, history []domain.ChatTurn, activeName, question string) string {
	fileContext := make([]string, 0, len(files))
	for _, f := range files {
		fileContext = append(fileContext, fmt.Sprintf("--- Arquivo: %s (%s) ---\n%s\n", f.Name, f.Language, f.Content))
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	conversation := make([]string, 0, len(history))
	for _, t := range history {
		if t.IsError || t.IsWelcome() {
			continue
		}
		speaker := persona.Name
		if t.Role == domain.RoleUser {
			speaker = "Aluno"
		}
		conversation = append(conversation, speaker+": "+t.Text)
	}

	var b strings.Builder
	b.WriteString("\nContexto do projeto atual:\n")
	b.WriteString(strings.Join(fileContext, "\n"))
	b.WriteString("\n\nHistórico da conversa recente:\n")
	b.WriteString(strings.Join(conversation, "\n\n"))
	b.WriteString("\n\nEditando atualmente: ")
	b.WriteString(activeName)
	b.WriteString("\n\nNova Pergunta do Aluno: ")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}

// WelcomeTurn greets the user on behalf of persona about the file being edited.
func WelcomeTurn(persona domain.Persona, activeName string) domain.ChatTurn {
	return domain.ChatTurn{
		ID:   domain.WelcomeTurnID,
		Role: domain.RoleAssistant,
		Text: fmt.Sprintf("Olá! Sou a %s, sua instrutora de código. Estou analisando o arquivo %s. No que posso ajudar você hoje?", persona.Name, activeName),
	}
}

// ErrorText is shown in place of a reply when the assistant could not be reached.
func ErrorText(persona domain.Persona) string {
	return fmt.Sprintf("Desculpe, ocorreu um erro ao conectar com a %s.", persona.Name)
}
