package realtime

import (
	"encoding/json"

	"github.com/BaSui01/pptagent/types"
)

// 客户端事件类型
const (
	evSessionUpdate    = "session.update"
	evResponseCreate   = "response.create"
	evResponseCancel   = "response.cancel"
	evItemCreate       = "conversation.item.create"
	evInputAudioAppend = "input_audio_buffer.append"
	evInputAudioCommit = "input_audio_buffer.commit"
)

// 服务端事件类型
const (
	evError                   = "error"
	evSessionCreated          = "session.created"
	evSessionUpdated          = "session.updated"
	evResponseCreated         = "response.created"
	evResponseDone            = "response.done"
	evAudioDelta              = "response.audio.delta"
	evAudioDone               = "response.audio.done"
	evAudioTranscriptDone     = "response.audio_transcript.done"
	evFunctionArgsDone        = "response.function_call_arguments.done"
	evSpeechStarted           = "input_audio_buffer.speech_started"
	evInputTranscriptComplete = "conversation.item.input_audio_transcription.completed"
)

// 回复状态
const (
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
	StatusIncomplete = "incomplete"
)

// handleKey 写入 response.metadata，用于把服务端回复关联到 SpeechHandle
const handleKey = "speech_handle"

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

type functionTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func toFunctionTools(schemas []types.ToolSchema) []functionTool {
	out := make([]functionTool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, functionTool{
			Type:        "function",
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return out
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type sessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection       `json:"turn_detection,omitempty"`
	Tools                   []functionTool       `json:"tools"`
	ToolChoice              string               `json:"tool_choice"`
	Temperature             float64              `json:"temperature,omitempty"`
}

type responseParams struct {
	Instructions string            `json:"instructions,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

// clientEvent 发往服务端的事件，按 Type 只填写对应字段
type clientEvent struct {
	EventID  string            `json:"event_id,omitempty"`
	Type     string            `json:"type"`
	Session  *sessionConfig    `json:"session,omitempty"`
	Response *responseParams   `json:"response,omitempty"`
	Item     *conversationItem `json:"item,omitempty"`
	Audio    string            `json:"audio,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

type statusDetails struct {
	Type   string    `json:"type"`
	Reason string    `json:"reason"`
	Error  *apiError `json:"error,omitempty"`
}

type outputItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responseObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	StatusDetails *statusDetails    `json:"status_details,omitempty"`
	Output        []outputItem      `json:"output,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// serverEvent 服务端事件的并集
type serverEvent struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Error      *apiError       `json:"error,omitempty"`
	Response   *responseObject `json:"response,omitempty"`
	ResponseID string          `json:"response_id,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Arguments  string          `json:"arguments,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
}
