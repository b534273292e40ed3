package mailbox

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Parser decodes raw message payloads into ParsedMessages.
type Parser struct{}

// NewParser creates a message parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a raw RFC 822 payload into a ParsedMessage, extracting the
// text/plain body, text/html body, and attachments with their content
// bytes. Envelope fields come from the IMAP envelope on the RawMessage.
func (p *Parser) Parse(msg RawMessage) (*ParsedMessage, error) {
	if len(msg.Raw) == 0 {
		return nil, &ParseError{
			MessageID: msg.MessageID,
			Err:       io.ErrUnexpectedEOF,
		}
	}

	parsed := &ParsedMessage{
		MessageID: msg.MessageID,
		From:      msg.From,
		Subject:   msg.Subject,
		Date:      msg.Date,
	}

	mr, err := mail.CreateReader(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, &ParseError{MessageID: msg.MessageID, Err: err}
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				parsed.TextBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				parsed.HTMLBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename: filename,
				MIMEType: contentType,
				Content:  body,
			})
		}
	}

	return parsed, nil
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags from a string and decodes common entities,
// providing a basic plain-text rendering.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
