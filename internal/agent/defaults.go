package agent

import "fmt"

// defaultWorkerSpec declares one standard worker. The pool is seeded from a
// single declaration per worker id.
type defaultWorkerSpec struct {
	id  string
	cfg Config
}

func defaultWorkerSpecs(defaultModel string) []defaultWorkerSpec {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return []defaultWorkerSpec{
		{
			id: WorkerSupervisor,
			cfg: Config{
				Type:         WorkerTypeSupervisor,
				Model:        defaultModel,
				ToolsAllowed: []string{"web_search"},
				SystemPrompt: "You are Cartrita, the supervisor agent of a multi-agent system. " +
					"You coordinate specialized research, writing, vision, computer-use, and code agents " +
					"and delegate each task to the most appropriate one.",
				Capabilities: []string{"task_delegation", "agent_coordination", "workflow_management"},
			},
		},
		{
			id: WorkerResearch,
			cfg: Config{
				Type:         WorkerTypeResearch,
				Model:        defaultModel,
				ToolsAllowed: []string{"web_search", "file_read", "file_write", "system_info"},
				SystemPrompt: "You are a research specialist agent. You gather information, run web " +
					"searches, fact-check, and synthesize findings from multiple sources.",
				Capabilities: []string{"web_research", "fact_checking", "data_analysis"},
			},
		},
		{
			id: WorkerWriter,
			cfg: Config{
				Type:         WorkerTypeWriter,
				Model:        defaultModel,
				ToolsAllowed: []string{"file_read", "file_write", "web_search"},
				SystemPrompt: "You are a professional writing agent. You create high-quality content, " +
					"documentation, and technical writing adapted to the target audience.",
				Capabilities: []string{"content_creation", "documentation", "copywriting", "technical_writing"},
			},
		},
		{
			id: WorkerVision,
			cfg: Config{
				Type:         WorkerTypeVision,
				Model:        defaultModel,
				ToolsAllowed: []string{"screenshot", "file_read", "system_info"},
				SystemPrompt: "You are a vision analysis agent. You analyze images, screenshots, and " +
					"diagrams, extract text, and describe visual content.",
				Capabilities: []string{"image_analysis", "ocr", "visual_recognition", "screenshot_analysis"},
			},
		},
		{
			id: WorkerComputerUse,
			cfg: Config{
				Type:               WorkerTypeComputerUse,
				Model:              "gpt-4o-mini",
				ComputerUseEnabled: true,
				ToolsAllowed:       []string{"screenshot", "system_info", "file_read", "file_write"},
				SystemPrompt: "You are a computer use agent. You interact with the desktop through " +
					"screenshots, clicks, typing, and scrolling to automate GUI tasks.",
				Capabilities: []string{"gui_automation", "desktop_control", "web_navigation", "app_interaction"},
			},
		},
		{
			id: WorkerCode,
			cfg: Config{
				Type:         WorkerTypeCodeWriter,
				Model:        defaultModel,
				ToolsAllowed: []string{"file_read", "file_write", "execute_code", "web_search"},
				SystemPrompt: "You are a senior software engineer agent. You write, review, and debug " +
					"clean, well-documented code across languages.",
				Capabilities: []string{"programming", "debugging", "code_review", "architecture_design"},
			},
		},
	}
}

// RegisterDefaults seeds the manager with the standard worker pool.
func (m *Manager) RegisterDefaults() error {
	for _, spec := range defaultWorkerSpecs(m.cfg.DefaultModel) {
		if _, err := m.CreateWorker(spec.id, spec.cfg); err != nil {
			return fmt.Errorf("failed to create default worker %s: %w", spec.id, err)
		}
	}
	m.logger.Info("initialized default worker pool")
	return nil
}
