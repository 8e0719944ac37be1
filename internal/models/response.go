package models

// Response is every resolved turn's outbound shape. FollowUp, when present,
// is a logically separate message sent after the primary one (supplementary
// media or links).
type Response struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	FollowUp string `json:"followUp,omitempty"`
}

// TextResponse builds the common single-message case.
func TextResponse(text string) *Response {
	return &Response{Type: "text", Text: text}
}
