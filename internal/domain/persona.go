package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPersona is returned when a persona cannot drive a conversation.
var ErrInvalidPersona = errors.New("invalid persona")

// DefaultAvatarURL is the avatar shown for the stock persona.
const DefaultAvatarURL = "https://img.icons8.com/?size=100&id=n0X3RRyAOlyK&format=png&color=000000"

const defaultInstruction = `Você é a Hana, uma instrutora de programação paciente e didática.
Ajude o aluno a entender HTML, CSS e JavaScript no projeto aberto no editor.
Explique o raciocínio em português, com passos curtos e exemplos de código quando forem úteis.
Prefira guiar o aluno até a solução em vez de reescrever o projeto inteiro.`

// Persona configures the assistant's name, avatar and behaviour.
type Persona struct {
	Name              string `json:"name"`
	AvatarURL         string `json:"avatarUrl"`
	SystemInstruction string `json:"systemInstruction"`
}

// DefaultPersona returns the stock instructor persona.
func DefaultPersona() Persona {
	return Persona{
		Name:              "Hana",
		AvatarURL:         DefaultAvatarURL,
		SystemInstruction: defaultInstruction,
	}
}

// Validate checks that the persona can drive a conversation.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPersona)
	}
	if strings.TrimSpace(p.SystemInstruction) == "" {
		return fmt.Errorf("%w: instruction is required", ErrInvalidPersona)
	}
	return nil
}
