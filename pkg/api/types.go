package api

import "encoding/json"

// StartInterviewRequest starts a new interview session.
type StartInterviewRequest struct {
	CandidateName string `json:"candidate_name"`
	ProblemID     string `json:"problem_id"`
}

// StartInterviewResponse carries the new session details.
type StartInterviewResponse struct {
	SessionID      string `json:"session_id"`
	CandidateName  string `json:"candidate_name"`
	ProblemTitle   string `json:"problem_title"`
	StarterCode    string `json:"starter_code"`
	WelcomeMessage string `json:"welcome_message"`
}

// SessionStatusResponse is the current session status.
type SessionStatusResponse struct {
	SessionID      string `json:"session_id"`
	IsComplete     bool   `json:"is_complete"`
	CodeSnapshot   string `json:"code_snapshot"`
	HintsGiven     int    `json:"hints_given"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
}

// CodeSnapshotRequest is a code update from the editor.
type CodeSnapshotRequest struct {
	Code           string `json:"code"`
	CursorPosition *int   `json:"cursor_position,omitempty"`
}

// CodeSnapshotResponse is the agent's reaction to a snapshot.
type CodeSnapshotResponse struct {
	HasResponse bool   `json:"has_response"`
	Message     string `json:"message,omitempty"`
	Action      string `json:"action,omitempty"`
}

// RunCodeRequest asks the backend to execute code against test cases.
type RunCodeRequest struct {
	Code string `json:"code"`
}

// RunCodeResponse carries execution results.
type RunCodeResponse struct {
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Total   int               `json:"total"`
	Details []json.RawMessage `json:"details"`
	Stderr  string            `json:"stderr,omitempty"`
}

// AllPassed reports whether every test case passed.
func (r *RunCodeResponse) AllPassed() bool {
	return r.Total > 0 && r.Passed == r.Total
}

// SubmitSolutionRequest is the final submission.
type SubmitSolutionRequest struct {
	Code string `json:"code"`
}

// FairnessSummary is the opaque fairness section of a report.
type FairnessSummary struct {
	BiasDetected  bool            `json:"bias_detected"`
	FairnessScore float64         `json:"fairness_score"`
	Flags         json.RawMessage `json:"flags,omitempty"`
}

// InterviewReport is the scoring/report payload. The client renders it
// verbatim; scoring semantics belong to the backend.
type InterviewReport struct {
	SessionID       string            `json:"session_id"`
	CandidateName   string            `json:"candidate_name"`
	ProblemTitle    string            `json:"problem_title"`
	DurationMinutes int               `json:"duration_minutes"`
	Scores          map[string]int    `json:"scores"`
	OverallScore    float64           `json:"overall_score"`
	Recommendation  string            `json:"recommendation"`
	Fairness        FairnessSummary   `json:"fairness"`
	Transcript      []json.RawMessage `json:"transcript"`
}

// ProblemSummary is one entry from the problem listing.
type ProblemSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
}

// ChatRequest is a candidate message plus the latest code snapshot.
type ChatRequest struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ChatResponse is the interviewer's reply.
type ChatResponse struct {
	Response string `json:"response"`
}

// TokenResponse is a short-lived transport access credential.
type TokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	RoomName string `json:"room_name"`
}

// TTSRequest asks the backend to synthesize speech.
type TTSRequest struct {
	Text string `json:"text"`
}
