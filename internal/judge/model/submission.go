package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Token identifies one queued execution on the judge.
type Token string

// UnmarshalJSON accepts either "abc" or {"token":"abc"}.
func (t *Token) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Token(s)
		return nil
	}
	var obj struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	*t = Token(obj.Token)
	return nil
}

// BatchRequest is the body of POST /submissions/batch.
type BatchRequest struct {
	SourceCode      string   `json:"source_code"`
	LanguageID      int      `json:"language_id"`
	Stdin           []string `json:"stdin"`
	ExpectedOutputs []string `json:"expected_outputs"`
}

// BatchResponse is the envelope returned by the batch endpoint.
type BatchResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    BatchData `json:"data"`
}

type BatchData struct {
	Tokens      []Token           `json:"tokens"`
	Submissions []BatchSubmission `json:"submissions"`
}

// BatchSubmission is the gateway-side record created for a batch.
type BatchSubmission struct {
	ID json.RawMessage `json:"id"`
}

// BatchResult is what the client hands back after a successful submit.
type BatchResult struct {
	Tokens []Token
	// JudgeRef is the gateway's submission id when one was returned.
	JudgeRef string
}

// Status is the nested status object of an execution snapshot.
type Status struct {
	ID          StatusID `json:"id"`
	Description string   `json:"description,omitempty"`
}

// ExecutionSnapshot is one poll response for a token.
type ExecutionSnapshot struct {
	Status        Status          `json:"status"`
	Stdout        *string         `json:"stdout"`
	Stderr        *string         `json:"stderr"`
	CompileOutput *string         `json:"compile_output"`
	Time          *string         `json:"time"`
	Memory        json.RawMessage `json:"memory"`
	Message       *string         `json:"message"`
}

// StdoutText returns stdout, or "" when absent.
func (s ExecutionSnapshot) StdoutText() string { return deref(s.Stdout) }

// StderrText returns stderr, or "" when absent.
func (s ExecutionSnapshot) StderrText() string { return deref(s.Stderr) }

// CompileOutputText returns compile_output, or "" when absent.
func (s ExecutionSnapshot) CompileOutputText() string { return deref(s.CompileOutput) }

// RuntimeText returns the run time in seconds as reported, "0" when absent.
func (s ExecutionSnapshot) RuntimeText() string {
	if s.Time == nil || *s.Time == "" {
		return "0"
	}
	return *s.Time
}

// MemoryText returns memory in KB as an integer string, "0" when absent.
// The judge reports it either as a number or a quoted string.
func (s ExecutionSnapshot) MemoryText() string {
	raw := bytes.TrimSpace(s.Memory)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "0"
	}
	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil || str == "" {
			return "0"
		}
		return str
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "0"
	}
	if i, err := n.Int64(); err == nil {
		return fmt.Sprintf("%d", i)
	}
	if f, err := n.Float64(); err == nil {
		return fmt.Sprintf("%d", int64(f))
	}
	return "0"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RefString renders a raw JSON id as a plain string.
func RefString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
