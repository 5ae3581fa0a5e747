package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abstractllm/abstractllm/pkg/config"
	"github.com/abstractllm/abstractllm/pkg/llm"
	"github.com/abstractllm/abstractllm/pkg/media"
	"github.com/abstractllm/abstractllm/pkg/usage"
)

var _ Handler = (*Recorder)(nil)

// base64Excerpt is how many characters of base64 image data survive into the
// debug file from each end.
const base64Excerpt = 50

// Recorder writes the exact resolved request — and later the outcome — of
// each call to a timestamped JSON file under Dir. Embedded image data is
// reduced to length plus head/tail excerpts so the files stay readable.
// The api_key parameter is redacted.
type Recorder struct {
	mu   sync.Mutex
	dir  string
	path string // file for the call in flight
	rec  record
}

type record struct {
	Provider        string          `json:"provider"`
	Timestamp       time.Time       `json:"timestamp"`
	Payload         payload         `json:"payload"`
	EstimatedTokens int             `json:"estimated_input_tokens"`
	ChunkCount      int             `json:"chunk_count,omitempty"`
	Response        *responseRecord `json:"response,omitempty"`
	Error           string          `json:"error,omitempty"`
}

type payload struct {
	Model        string        `json:"model"`
	Prompt       string        `json:"prompt"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Stream       bool          `json:"stream"`
	Params       config.Params `json:"params"`
	Files        []fileRecord  `json:"files,omitempty"`
}

type fileRecord struct {
	Filename  string     `json:"filename,omitempty"`
	Kind      string     `json:"kind"`
	MimeType  string     `json:"mime_type"`
	TextLen   int        `json:"text_len,omitempty"`
	DataDebug *dataDebug `json:"data_debug,omitempty"`
}

type dataDebug struct {
	Length int    `json:"length"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type responseRecord struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// NewRecorder creates a Recorder writing under dir, creating it if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("handlers: create logs directory: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

func (r *Recorder) HandleRequest(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.path = filepath.Join(r.dir, fmt.Sprintf("request_%s.json", now.Format("20060102_150405.000")))
	r.rec = record{
		Provider:        req.Provider,
		Timestamp:       now,
		EstimatedTokens: usage.Estimator{}.EstimateRequest(req.SystemPrompt, req.Prompt, req.Files),
		Payload: payload{
			Model:        req.Model,
			Prompt:       req.Prompt,
			SystemPrompt: req.SystemPrompt,
			Stream:       req.Stream,
			Params:       redact(req.Params),
			Files:        describeFiles(req.Files),
		},
	}

	// Write before the request goes out so the payload survives a hang.
	r.flush()
}

func (r *Recorder) HandleChunk(llm.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rec.ChunkCount++
}

func (r *Recorder) HandleResponse(resp *llm.Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.rec.Error = err.Error()
	} else if resp != nil {
		r.rec.Response = &responseRecord{
			Text:         resp.Text,
			FinishReason: resp.FinishReason,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
	}

	r.flush()
}

// flush writes the current record. Callers hold the mutex.
func (r *Recorder) flush() {
	if r.path == "" {
		return
	}
	data, err := json.MarshalIndent(r.rec, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(r.path, data, 0o644)
}

func redact(p config.Params) config.Params {
	out := p.Clone()
	if out.Has(config.APIKey) {
		out[config.APIKey] = "[redacted]"
	}
	return out
}

func describeFiles(files []media.Input) []fileRecord {
	if len(files) == 0 {
		return nil
	}

	out := make([]fileRecord, 0, len(files))
	for _, f := range files {
		switch v := f.(type) {
		case media.Text:
			out = append(out, fileRecord{
				Filename: v.Filename,
				Kind:     v.Kind(),
				MimeType: v.MIMEType(),
				TextLen:  len(v.Content),
			})
		case media.Image:
			b64 := v.Base64()
			dd := &dataDebug{Length: len(b64)}
			if len(b64) <= 2*base64Excerpt {
				dd.Start = b64
			} else {
				dd.Start = b64[:base64Excerpt]
				dd.End = b64[len(b64)-base64Excerpt:]
			}
			out = append(out, fileRecord{
				Filename:  v.Filename,
				Kind:      v.Kind(),
				MimeType:  v.MIMEType(),
				DataDebug: dd,
			})
		default:
			out = append(out, fileRecord{Kind: f.Kind(), MimeType: f.MIMEType()})
		}
	}
	return out
}
