package email

import (
	"encoding/base64"
	"encoding/json"
)

// storedAttachment is the JSON form kept in email_outbox.attachments_json.
type storedAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"` // base64, standard encoding
}

// EncodeAttachments serializes attachments for the outbox. It returns nil
// when there is nothing to store.
func EncodeAttachments(atts []Attachment) ([]byte, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	stored := make([]storedAttachment, 0, len(atts))
	for _, a := range atts {
		stored = append(stored, storedAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
		})
	}
	return json.Marshal(stored)
}

// DecodeAttachments is lenient: malformed JSON yields no attachments and an
// item whose content is not valid base64 is skipped. The second return value
// counts skipped items.
func DecodeAttachments(raw []byte) ([]Attachment, int) {
	if len(raw) == 0 {
		return nil, 0
	}

	var stored []storedAttachment
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, 1
	}

	var (
		atts    []Attachment
		skipped int
	)
	for _, s := range stored {
		content, err := base64.StdEncoding.DecodeString(s.Content)
		if err != nil || s.Filename == "" {
			skipped++
			continue
		}
		ct := s.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		atts = append(atts, Attachment{Filename: s.Filename, ContentType: ct, Content: content})
	}
	return atts, skipped
}
