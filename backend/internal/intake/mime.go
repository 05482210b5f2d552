package intake

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
)

// Attachment is one leaf part pulled out of a MIME message.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

// mediaTypeExt maps the media types OrderFlow accepts to a fallback
// extension for synthesized attachment names; anything else falls back to
// "bin".
var mediaTypeExt = map[string]string{
	"application/pdf": "pdf",
	"text/csv":        "csv",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"application/vnd.ms-excel":                                         "xls",
}

// ParsedEmail is the result of walking one raw RFC 5322 message.
type ParsedEmail struct {
	MessageID   string // header value, or the synthetic urn:sha256:<hash> fallback
	FromAddress string
	Attachments []Attachment
}

// WalkMIME parses a raw email per spec.md §4.3: leaf attachments only,
// inline images skipped unless they are the sole attachment, filenames
// RFC 2047-decoded with a synthetic "part-<index>.<ext>" fallback, and a
// synthetic Message-ID derived from headers+body when the header is absent.
func WalkMIME(raw []byte) (ParsedEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ParsedEmail{}, fmt.Errorf("parse message: %w", err)
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return ParsedEmail{}, fmt.Errorf("read message body: %w", err)
	}

	result := ParsedEmail{
		MessageID:   strings.Trim(msg.Header.Get("Message-ID"), "<>"),
		FromAddress: msg.Header.Get("From"),
	}
	if result.MessageID == "" {
		result.MessageID = syntheticMessageID(raw)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		// Not multipart: the whole body is the sole part. A plain-text body
		// with no declared attachment carries nothing extractable.
		return result, nil
	}

	parts, err := walkParts(bytes.NewReader(body), params["boundary"], 0)
	if err != nil {
		return result, err
	}
	result.Attachments = selectAttachments(parts)
	return result, nil
}

// candidatePart is one leaf MIME part before the inline-image filter runs.
type candidatePart struct {
	filename  string
	mediaType string
	data      []byte
	inline    bool
	isImage   bool
}

func walkParts(r io.Reader, boundary string, depth int) ([]candidatePart, error) {
	if boundary == "" {
		return nil, nil
	}
	reader := multipart.NewReader(r, boundary)
	var out []candidatePart
	index := 0
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mime part: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read mime part body: %w", err)
		}

		partMediaType, partParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(partMediaType, "multipart/") && depth < 8 {
			nested, err := walkParts(bytes.NewReader(data), partParams["boundary"], depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			index++
			continue
		}

		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		filename := decodeFilename(dispParams["filename"])
		if filename == "" {
			filename = decodeFilename(partParams["name"])
		}
		if filename == "" && disposition != "attachment" && (partMediaType == "text/plain" || partMediaType == "text/html") {
			// An unnamed text part is the message body, not an attachment.
			index++
			continue
		}
		if filename == "" {
			filename = fmt.Sprintf("part-%d.%s", index, extFor(partMediaType))
		}

		out = append(out, candidatePart{
			filename:  filename,
			mediaType: partMediaType,
			data:      data,
			inline:    disposition == "inline",
			isImage:   strings.HasPrefix(partMediaType, "image/"),
		})
		index++
	}
	return out, nil
}

// selectAttachments applies the inline-image rule: an inline image part is
// dropped unless it would otherwise be the only attachment in the message.
func selectAttachments(parts []candidatePart) []Attachment {
	nonInlineImages := 0
	for _, p := range parts {
		if !(p.inline && p.isImage) {
			nonInlineImages++
		}
	}
	var out []Attachment
	for _, p := range parts {
		if p.inline && p.isImage && nonInlineImages > 0 {
			continue
		}
		out = append(out, Attachment{Filename: p.filename, MediaType: p.mediaType, Data: p.data})
	}
	return out
}

// decodeFilename applies RFC 2047 ("=?charset?...?...?=") decoding; an
// undecodable or empty value returns "" so the caller falls back to a
// synthetic name.
func decodeFilename(raw string) string {
	if raw == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func extFor(mediaType string) string {
	if ext, ok := mediaTypeExt[mediaType]; ok {
		return ext
	}
	return "bin"
}

// syntheticMessageID implements the "urn:sha256:<hash>" fallback of
// spec.md §4.3, derived from the full raw message so dedup semantics over
// (tenant, source, provider_message_id) are preserved even for senders that
// omit Message-ID.
func syntheticMessageID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "urn:sha256:" + hex.EncodeToString(sum[:])
}
