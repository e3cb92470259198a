package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/sales.txt
	salesRaw string

	//go:embed template/research.txt
	researchRaw string

	//go:embed template/manager.txt
	managerRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Sales    string
	Research string
	Manager  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Sales:    strings.TrimSpace(salesRaw),
		Research: strings.TrimSpace(researchRaw),
		Manager:  strings.TrimSpace(managerRaw),
	}
}
