package prompts

import (
	"strings"

	"github.com/xpanvictor/avatarchat/pkg/assistant"
)

type PromptDefinition struct {
	Content string
	Version float32
}

type SYS_PROMPT struct {
	Intent         string
	CurrentVersion float32
	Items          map[float32]PromptDefinition // version-content
}

func (sp *SYS_PROMPT) GetVersion(version float32) (PromptDefinition, bool) {
	i, ok := sp.Items[version]
	return i, ok
}

func (sp *SYS_PROMPT) GetCurrentPrompt() PromptDefinition {
	return sp.Items[sp.CurrentVersion]
}

// Text collapses the indentation of the raw literal.
func (pd PromptDefinition) Text() string {
	return strings.Join(strings.Fields(pd.Content), " ")
}

func (pd PromptDefinition) ToMessage() assistant.AssistantMessage {
	return assistant.AssistantMessage{
		MsgRole: assistant.SYSTEM,
		Content: pd.Text(),
	}
}

// SystemPrompt returns override when set, otherwise the current avatar prompt.
func SystemPrompt(override string) string {
	if o := strings.TrimSpace(override); o != "" {
		return o
	}
	return AVATAR_PROMPT.GetCurrentPrompt().Text()
}
