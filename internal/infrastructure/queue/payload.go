package queue

import "encoding/json"

// TypeTranscription is the asynq task type for transcription jobs.
const TypeTranscription = "transcription:process"

// TranscriptionPayload is the job payload. TaskID links the queue entry back
// to the durable task record; queue membership is the only signal that a
// task is actually being worked on.
type TranscriptionPayload struct {
	TaskID   string `json:"task_id"`
	OwnerID  string `json:"owner_id"`
	FilePath string `json:"file_path"`
}

func marshalPayload(p TranscriptionPayload) ([]byte, error) {
	return json.Marshal(p)
}

func unmarshalPayload(data []byte) (TranscriptionPayload, error) {
	var p TranscriptionPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

// UnmarshalPayload decodes a transcription job payload. Exported for the
// worker, which receives raw asynq task bytes.
func UnmarshalPayload(data []byte) (TranscriptionPayload, error) {
	return unmarshalPayload(data)
}
