package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/extractor.txt
	extractorRaw string

	//go:embed template/reply.txt
	replyRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Extractor string
	Reply     string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Extractor: strings.TrimSpace(extractorRaw),
		Reply:     strings.TrimSpace(replyRaw),
	}
}
