package agent

import "strings"

// Default worker ids for the keyword groups.
const (
	WorkerSupervisor  = "supervisor"
	WorkerResearch    = "research"
	WorkerWriter      = "writer"
	WorkerVision      = "vision"
	WorkerComputerUse = "computer-use"
	WorkerCode        = "code"
)

// computerUseKeywords flips the computer-use flag on a task in addition to
// routing.
var computerUseKeywords = []string{
	"screenshot", "click", "type", "scroll", "navigate", "browse",
	"open application", "close window", "desktop", "automate",
	"gui", "interface", "button", "menu", "mouse", "keyboard",
}

// keywordRule maps a keyword set to a worker id. Rules are scanned in
// order; the first hit wins.
type keywordRule struct {
	workerID string
	keywords []string
}

var routingRules = []keywordRule{
	{WorkerResearch, []string{
		"search", "research", "find information", "look up", "investigate",
		"gather data", "fact check", "web search", "current events",
	}},
	{WorkerVision, []string{
		"image", "picture", "screenshot", "visual", "analyze image",
		"ocr", "computer vision", "describe image",
	}},
	{WorkerCode, []string{
		"code", "program", "script", "function", "debug", "implement",
		"programming", "software", "algorithm", "javascript", "python",
	}},
	{WorkerWriter, []string{
		"write", "create content", "article", "blog", "essay", "documentation",
		"report", "copy", "compose",
	}},
}

// Router maps a task description to a worker id by case-insensitive
// substring match against fixed keyword groups. Given the same description
// and worker set, the choice is deterministic.
type Router struct {
	defaultWorker string
}

// NewRouter builds a router falling back to the given worker.
func NewRouter(defaultWorker string) *Router {
	if defaultWorker == "" {
		defaultWorker = WorkerSupervisor
	}
	return &Router{defaultWorker: defaultWorker}
}

// RequiresComputerUse reports whether the description names a GUI
// interaction.
func RequiresComputerUse(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range computerUseKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Route picks a worker id for the description. Computer-use keywords take
// precedence over the other groups.
func (r *Router) Route(description string) string {
	if RequiresComputerUse(description) {
		return WorkerComputerUse
	}

	lower := strings.ToLower(description)
	for _, rule := range routingRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.workerID
			}
		}
	}
	return r.defaultWorker
}
