package mailbox

import "time"

// RawMessage is one fetched mailbox message: the IMAP envelope data plus
// the full raw RFC 822 payload.
type RawMessage struct {
	UID       uint32
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Raw       []byte
}

// ParsedMessage is the structured form of a message after MIME parsing.
type ParsedMessage struct {
	MessageID   string
	From        string
	Subject     string
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Body returns the best-effort plain-text body, falling back to a stripped
// rendering of the HTML part when no text/plain part exists.
func (m *ParsedMessage) Body() string {
	if m.TextBody != "" {
		return m.TextBody
	}
	return StripHTML(m.HTMLBody)
}

// Attachment holds one message attachment with its content bytes.
type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}
