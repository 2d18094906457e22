package runtime

// Stage is where a single pipeline request currently is.
type Stage string

const (
	RECEIVED Stage = "received"
	VAD      Stage = "vad"
	ASR      Stage = "asr"
	LLM      Stage = "llm"
	TTS      Stage = "tts"
	AVATAR   Stage = "avatar"
	COMPLETE Stage = "complete"
	FAILED   Stage = "failed"
)

type RuntimeEvents string

const (
	DETECT     RuntimeEvents = "detect"
	TRANSCRIBE RuntimeEvents = "transcribe"
	GENERATE   RuntimeEvents = "generate"
	SYNTHESIZE RuntimeEvents = "synthesize"
	RENDER     RuntimeEvents = "render"
	FINISH     RuntimeEvents = "finish"
	FAIL       RuntimeEvents = "fail"
)

var stageEvents = map[Stage]RuntimeEvents{
	VAD:      DETECT,
	ASR:      TRANSCRIBE,
	LLM:      GENERATE,
	TTS:      SYNTHESIZE,
	AVATAR:   RENDER,
	COMPLETE: FINISH,
	FAILED:   FAIL,
}

func (s Stage) Terminal() bool { return s == COMPLETE || s == FAILED }
