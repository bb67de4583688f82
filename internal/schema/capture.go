package schema

// ActionCaptureScreen asks the capture agent for a screenshot of the active view.
const ActionCaptureScreen = "captureScreen"

// CaptureRequest is a frame sent to the capture agent. ID correlates the reply.
type CaptureRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// CaptureResponse is the capture agent's reply. ImageData is base64 PNG
// without a data-URI prefix.
type CaptureResponse struct {
	ID        string `json:"id"`
	Success   bool   `json:"success"`
	ImageData string `json:"imageData,omitempty"`
	Error     string `json:"error,omitempty"`
}
