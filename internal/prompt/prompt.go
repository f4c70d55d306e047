// Package prompt builds the system instruction sent to the live service when
// a call opens.
//
// The instruction combines the assistant persona, the caller's language, a
// service-specific scope taken from an enum-keyed table, and the knowledge
// corpus framed as question/answer pairs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/pranimitra/internal/knowledge"
)

// Language is a conversation language the assistant answers in.
type Language string

const (
	Telugu  Language = "Telugu"
	Hindi   Language = "Hindi"
	English Language = "English"
)

// Languages lists the supported languages in menu order.
var Languages = []Language{Telugu, Hindi, English}

// Service scopes what the assistant is allowed to talk about.
type Service string

const (
	ServiceFarming      Service = "Farming"
	ServiceAnimalHealth Service = "Animal Health"
	ServiceSchemes      Service = "Government Schemes"
	ServiceGeneral      Service = "General Queries"
)

// Services lists the selectable services in menu order.
var Services = []Service{ServiceFarming, ServiceAnimalHealth, ServiceSchemes, ServiceGeneral}

// Persona is the assistant's name.
const Persona = "Prani Mitra"

const (
	kbStart = "---START OF KNOWLEDGE BASE---"
	kbEnd   = "---END OF KNOWLEDGE BASE---"

	kbPreface = "Use the following Knowledge Base to answer questions. If a question is within the selected service domain but the answer is not in the Knowledge Base, you may provide general helpful advice based on standard agricultural practices in India, but prioritize the Knowledge Base."
)

// instructions maps each service to its scope instruction. Unknown services
// use the ServiceGeneral entry.
var instructions = map[Service]string{
	ServiceFarming:      "The user has explicitly selected 'Farming' services. You must STRICTLY LIMIT your responses to questions about crops, soil, plants, irrigation, fertilizers, weather impact on crops, and pest management for crops. You must answer these questions based primarily on the provided Knowledge Base. DO NOT answer questions about animals, livestock, or veterinary advice. If the user asks about animals, politely inform them in the selected language that you can only answer farming-related questions in this mode.",
	ServiceAnimalHealth: "The user has explicitly selected 'Animal Health' services. You must STRICTLY LIMIT your responses to questions about livestock, cattle, poultry, sheep, goats, pigs, animal diseases, animal nutrition, and veterinary advice. You must answer these questions based primarily on the provided Knowledge Base. DO NOT answer questions about growing crops, soil, or plant farming. If the user asks about crops, politely inform them in the selected language that you can only answer animal health questions in this mode.",
	ServiceSchemes:      "The user has selected 'Government Schemes'. Focus primarily on explaining government schemes available for farmers. You may use external general knowledge for major Indian schemes if not found in the knowledge base. Do not answer detailed technical farming or veterinary questions unless they relate to a scheme.",
	ServiceGeneral:      "The user has selected 'General Queries'. You may answer questions regarding both Farming and Animal Health based on the provided Knowledge Base.",
}

// Instruction returns the scope instruction for s, falling back to the
// general queries instruction.
func Instruction(s Service) string {
	if text, ok := instructions[s]; ok {
		return text
	}
	return instructions[ServiceGeneral]
}

// Build renders the full system instruction for a call.
func Build(lang Language, svc Service, corpus []knowledge.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a friendly and helpful AI assistant for Indian farmers. You must respond ONLY in %s.\n\n", Persona, lang)
	b.WriteString(Instruction(svc))
	b.WriteString("\n\n")
	b.WriteString(kbPreface)
	b.WriteString("\n\n")
	b.WriteString(kbStart)
	b.WriteByte('\n')
	b.WriteString(FormatCorpus(corpus))
	b.WriteByte('\n')
	b.WriteString(kbEnd)
	return b.String()
}

// FormatCorpus renders entries as "Q: ...\nA: ..." blocks separated by a
// blank line.
func FormatCorpus(corpus []knowledge.Entry) string {
	blocks := make([]string, len(corpus))
	for i, e := range corpus {
		blocks[i] = "Q: " + e.Question + "\nA: " + e.Answer
	}
	return strings.Join(blocks, "\n\n")
}
