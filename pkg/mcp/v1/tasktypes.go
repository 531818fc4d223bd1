package v1

// Task types follow a dotted namespace. The set below is the supported
// leaf list; bridges may accept unknown types and fail them when no agent
// claims the capability.
const (
	// HuggingFace tasks
	TaskHFTextGeneration      = "huggingface.text.generation"
	TaskHFTextClassification  = "huggingface.text.classification"
	TaskHFTextSummarization   = "huggingface.text.summarization"
	TaskHFTextTranslation     = "huggingface.text.translation"
	TaskHFTextQA              = "huggingface.text.question_answering"
	TaskHFVisionClassify      = "huggingface.vision.classification"
	TaskHFVisionDetection     = "huggingface.vision.object_detection"
	TaskHFVisionSegmentation  = "huggingface.vision.segmentation"
	TaskHFAudioSTT            = "huggingface.audio.speech_recognition"
	TaskHFAudioTTS            = "huggingface.audio.text_to_speech"
	TaskHFMultimodalVQA       = "huggingface.multimodal.visual_qa"

	// LangChain tasks
	TaskLCAgentExecute      = "langchain.agent.execute"
	TaskLCChatExecute       = "langchain.chat.execute"
	TaskLCReactExecute      = "langchain.react.execute"
	TaskLCGenerativeExecute = "langchain.generative.execute"
	TaskLCPlanExecute       = "langchain.plan_execute"
	TaskLCBabyAGIExecute    = "langchain.babyagi.execute"

	// Deepgram tasks
	TaskDGTranscribeLive = "deepgram.audio.transcribe.live"
	TaskDGTranscribeFile = "deepgram.audio.transcribe.file"
	TaskDGAgentLive      = "deepgram.audio.agent.live"

	// System tasks
	TaskSysHealthCheck    = "system.health_check"
	TaskSysTelemetryQuery = "system.telemetry_query"
	TaskSysConfigUpdate   = "system.config_update"

	// Life OS tasks
	TaskLifeOSCalendarSync  = "lifeos.calendar.sync"
	TaskLifeOSEmailProcess  = "lifeos.email.process"
	TaskLifeOSContactSearch = "lifeos.contact.search"

	// Security tasks
	TaskSecAudit           = "security.audit"
	TaskSecVulnScan        = "security.vulnerability_scan"
	TaskSecComplianceCheck = "security.compliance_check"

	// Memory tasks
	TaskMemKGUpsert        = "memory.knowledge_graph.upsert"
	TaskMemKGQuery         = "memory.knowledge_graph.query"
	TaskMemContextRetrieve = "memory.context.retrieve"
	TaskMemContextStore    = "memory.context.store"

	// Specialized agent tasks
	TaskResearchWebSearch  = "research.web.search"
	TaskResearchWebScrape  = "research.web.scrape"
	TaskWriterCompose      = "writer.compose"
	TaskCodeWriterGenerate = "codewriter.generate"
	TaskAnalyticsRunQuery  = "analytics.run_query"
	TaskSchedulerSchedule  = "scheduler.schedule_event"
	TaskMultimodalFuse     = "multimodal.fuse"
	TaskTranslationDetect  = "translation.detect_translate"
	TaskNotificationSend   = "notification.send"
	TaskArtistGenerate     = "artist.generate_image"
	TaskDesignCreateMockup = "design.create_mockup"
	TaskComedianJoke       = "comedian.generate_joke"
)

var supportedTaskTypes = map[string]struct{}{
	TaskHFTextGeneration: {}, TaskHFTextClassification: {}, TaskHFTextSummarization: {},
	TaskHFTextTranslation: {}, TaskHFTextQA: {}, TaskHFVisionClassify: {},
	TaskHFVisionDetection: {}, TaskHFVisionSegmentation: {}, TaskHFAudioSTT: {},
	TaskHFAudioTTS: {}, TaskHFMultimodalVQA: {},
	TaskLCAgentExecute: {}, TaskLCChatExecute: {}, TaskLCReactExecute: {},
	TaskLCGenerativeExecute: {}, TaskLCPlanExecute: {}, TaskLCBabyAGIExecute: {},
	TaskDGTranscribeLive: {}, TaskDGTranscribeFile: {}, TaskDGAgentLive: {},
	TaskSysHealthCheck: {}, TaskSysTelemetryQuery: {}, TaskSysConfigUpdate: {},
	TaskLifeOSCalendarSync: {}, TaskLifeOSEmailProcess: {}, TaskLifeOSContactSearch: {},
	TaskSecAudit: {}, TaskSecVulnScan: {}, TaskSecComplianceCheck: {},
	TaskMemKGUpsert: {}, TaskMemKGQuery: {}, TaskMemContextRetrieve: {}, TaskMemContextStore: {},
	TaskResearchWebSearch: {}, TaskResearchWebScrape: {}, TaskWriterCompose: {},
	TaskCodeWriterGenerate: {}, TaskAnalyticsRunQuery: {}, TaskSchedulerSchedule: {},
	TaskMultimodalFuse: {}, TaskTranslationDetect: {}, TaskNotificationSend: {},
	TaskArtistGenerate: {}, TaskDesignCreateMockup: {}, TaskComedianJoke: {},
}

// supervisorCapabilities maps each supervisor to the task types it owns.
var supervisorCapabilities = map[string][]string{
	"intelligence": {
		TaskLCAgentExecute,
		TaskLCChatExecute,
		TaskLCReactExecute,
		TaskHFTextGeneration,
		TaskHFTextClassification,
		TaskResearchWebSearch,
		TaskWriterCompose,
		TaskCodeWriterGenerate,
		TaskAnalyticsRunQuery,
	},
	"multimodal": {
		TaskHFVisionClassify,
		TaskHFAudioSTT,
		TaskDGTranscribeLive,
		TaskDGAgentLive,
		TaskMultimodalFuse,
		TaskArtistGenerate,
	},
	"system": {
		TaskSysHealthCheck,
		TaskSysTelemetryQuery,
		TaskLifeOSCalendarSync,
		TaskSecAudit,
		TaskMemKGQuery,
		TaskNotificationSend,
	},
}

// IsValidTaskType reports whether the task type is in the supported set.
func IsValidTaskType(taskType string) bool {
	_, ok := supportedTaskTypes[taskType]
	return ok
}

// SupervisorForTask returns the supervisor responsible for a task type.
// Unmapped types fall back to "intelligence".
func SupervisorForTask(taskType string) string {
	for supervisor, capabilities := range supervisorCapabilities {
		for _, c := range capabilities {
			if c == taskType {
				return supervisor
			}
		}
	}
	return "intelligence"
}
