// Package prompts holds the system prompt and the templates used to turn
// suggestion operations into generator requests.
package prompts

import "fmt"

// AgentName is the assistant's public name.
const AgentName = "Ultima"

// DefaultSystemPrompt is used when no prompt override is configured.
const DefaultSystemPrompt = "You are " + AgentName + ", an advanced AI assistant with cutting-edge capabilities. " +
	"You excel at code generation, analysis, and intelligent problem-solving. " +
	"Your responses are precise, helpful, and technically accurate. " +
	"You maintain a professional yet approachable tone."

// CodeSuggestion asks for a code change as a complete block or unified diff.
func CodeSuggestion(fileContent, changeDescription string) string {
	return fmt.Sprintf("Given the following code:\n\n```\n%s\n```\n\n"+
		"And the request: '%s'.\n\n"+
		"Please provide a code suggestion to implement this change. "+
		"Your response should be either a complete new code block for the relevant section, "+
		"or a clear diff format (unified diff) if a small modification is sufficient. "+
		"Focus on correctness, maintainability, and adhering to best practices. "+
		"Provide only the code suggestion, nothing else. If you provide a diff, start with `---`.",
		fileContent, changeDescription)
}

// PromptSuggestion asks the model to refine the current system prompt.
func PromptSuggestion(currentPrompt string) string {
	return fmt.Sprintf("Based on your current system prompt: '%s', "+
		"and your goal to become a better, more helpful AI assistant, "+
		"suggest a refined or improved version of this system prompt. "+
		"Focus on clarity, effectiveness, and guiding your responses. "+
		"Provide only the new system prompt text, nothing else.",
		currentPrompt)
}

// ToolSuggestion asks the model to sketch a tool implementation for a
// described capability.
func ToolSuggestion(description string) string {
	return fmt.Sprintf("Design a small, self-contained tool that does the following: '%s'.\n\n"+
		"Describe the tool's name, its inputs and outputs, and provide a reference "+
		"implementation. Keep the implementation minimal and practical. "+
		"Provide only the tool design and code, nothing else.",
		description)
}
