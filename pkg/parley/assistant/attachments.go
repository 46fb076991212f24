// Package assistant – attachments.go turns chat attachments into prompt
// material: images become base64 data URLs for vision models, PDFs go through
// pdftotext, and text files are read directly. Anything unreadable leaves a
// placeholder so the model knows a file was there.
package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/parleybot/parley/pkg/parley/channels"
)

// AttachmentContent is the processed form of one attachment.
type AttachmentContent struct {
	Filename string
	// ImageDataURL is set for images: a data: URL suitable for a vision
	// model's image_url content part.
	ImageDataURL string
	// Text is set for documents: the extracted text, capped.
	Text string
	// Placeholder is set when the attachment could not be used; it
	// describes why, in text the model will see.
	Placeholder string
}

// IsImage reports whether this attachment resolved to image content.
func (a AttachmentContent) IsImage() bool { return a.ImageDataURL != "" }

// AttachmentProcessor applies size and type policy to incoming attachments
// and extracts their content.
type AttachmentProcessor struct {
	cfg    FilesConfig
	logger *slog.Logger
}

// NewAttachmentProcessor creates a processor with the given file policy.
func NewAttachmentProcessor(cfg FilesConfig, logger *slog.Logger) *AttachmentProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentProcessor{cfg: cfg, logger: logger.With("component", "attachments")}
}

// downloader is the subset of the channel surface needed to fetch attachment
// bytes.
type downloader interface {
	DownloadAttachment(ctx context.Context, att *channels.Attachment) ([]byte, string, error)
}

// Process classifies and extracts each attachment. It never fails the whole
// batch: a broken or disallowed attachment yields a placeholder entry.
func (p *AttachmentProcessor) Process(ctx context.Context, dl downloader, atts []channels.Attachment) []AttachmentContent {
	out := make([]AttachmentContent, 0, len(atts))
	for _, att := range atts {
		out = append(out, p.processOne(ctx, dl, att))
	}
	return out
}

func (p *AttachmentProcessor) processOne(ctx context.Context, dl downloader, att channels.Attachment) AttachmentContent {
	result := AttachmentContent{Filename: att.Filename}
	kind := classifyAttachment(att)

	var maxBytes int64
	switch kind {
	case attachmentImage:
		if !p.cfg.AllowImages {
			result.Placeholder = fmt.Sprintf("[Image %q skipped: image attachments are disabled.]", att.Filename)
			return result
		}
		maxBytes = int64(p.cfg.MaxImageSizeMB) * 1024 * 1024
	case attachmentPDF:
		if !p.cfg.AllowPDF {
			result.Placeholder = fmt.Sprintf("[PDF %q skipped: PDF attachments are disabled.]", att.Filename)
			return result
		}
		maxBytes = int64(p.cfg.MaxPDFSizeMB) * 1024 * 1024
	case attachmentText:
		if !p.cfg.AllowText {
			result.Placeholder = fmt.Sprintf("[File %q skipped: text attachments are disabled.]", att.Filename)
			return result
		}
		maxBytes = int64(p.cfg.MaxTextSizeMB) * 1024 * 1024
	default:
		result.Placeholder = fmt.Sprintf("[Attachment %q has an unsupported format.]", att.Filename)
		return result
	}

	if att.Size > 0 && int64(att.Size) > maxBytes {
		result.Placeholder = fmt.Sprintf("[Attachment %q skipped: %.1f MB exceeds the %d MB limit.]",
			att.Filename, float64(att.Size)/(1024*1024), maxBytes/(1024*1024))
		return result
	}

	data, _, err := dl.DownloadAttachment(ctx, &att)
	if err != nil {
		p.logger.Warn("attachment download failed", "file", att.Filename, "error", err)
		result.Placeholder = fmt.Sprintf("[Attachment %q could not be downloaded.]", att.Filename)
		return result
	}
	if int64(len(data)) > maxBytes {
		result.Placeholder = fmt.Sprintf("[Attachment %q skipped: exceeds the %d MB limit.]",
			att.Filename, maxBytes/(1024*1024))
		return result
	}

	switch kind {
	case attachmentImage:
		mime := sniffImageMime(data)
		if mime == "" {
			result.Placeholder = fmt.Sprintf("[File %q is not a recognized image format.]", att.Filename)
			return result
		}
		result.ImageDataURL = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	case attachmentPDF:
		text := extractPDFText(data, p.logger)
		result.Text = TruncateRunes(text, p.cfg.MaxPDFChars)
	case attachmentText:
		result.Text = TruncateRunes(string(data), p.cfg.MaxPDFChars)
	}
	return result
}

type attachmentKind int

const (
	attachmentUnknown attachmentKind = iota
	attachmentImage
	attachmentPDF
	attachmentText
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true, ".xml": true,
	".html": true, ".htm": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".log": true, ".py": true, ".go": true,
	".js": true, ".ts": true, ".java": true, ".c": true, ".cpp": true,
	".h": true, ".rs": true, ".sh": true, ".sql": true, ".css": true,
}

func classifyAttachment(att channels.Attachment) attachmentKind {
	mime := strings.ToLower(att.MimeType)
	ext := strings.ToLower(filepath.Ext(att.Filename))

	switch {
	case strings.HasPrefix(mime, "image/"),
		ext == ".png", ext == ".jpg", ext == ".jpeg", ext == ".gif", ext == ".webp":
		return attachmentImage
	case mime == "application/pdf", ext == ".pdf":
		return attachmentPDF
	case strings.HasPrefix(mime, "text/"), textExtensions[ext]:
		return attachmentText
	}
	return attachmentUnknown
}

// sniffImageMime identifies the image format from magic bytes rather than
// trusting the filename or declared MIME type.
func sniffImageMime(data []byte) string {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return ""
}

// extractPDFText runs pdftotext on the document. Extraction failures return
// placeholder text rather than an error so the conversation continues.
func extractPDFText(data []byte, logger *slog.Logger) string {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		logger.Warn("pdftotext not found, install poppler-utils for PDF support")
		return "[Unable to read PDF: the 'pdftotext' tool is not installed on this server.]"
	}

	tmpFile, err := os.CreateTemp("", "parley-pdf-*.pdf")
	if err != nil {
		logger.Warn("failed to create temp file for PDF", "error", err)
		return "[Unable to read PDF: temporary file creation failed.]"
	}
	defer os.Remove(tmpFile.Name())

	// Document content may be sensitive; keep the temp file owner-only.
	if err := os.Chmod(tmpFile.Name(), 0o600); err != nil {
		tmpFile.Close()
		logger.Warn("failed to chmod PDF temp file", "error", err)
		return "[Unable to read PDF: file permission error.]"
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		logger.Warn("failed to write PDF temp file", "error", err)
		return "[Unable to read PDF: file write error.]"
	}
	tmpFile.Close()

	cmd := exec.Command("pdftotext", "-layout", tmpFile.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logger.Warn("pdftotext failed", "error", err, "stderr", stderr.String())
		return "[Unable to read PDF: text extraction failed. The file may be corrupted or password-protected.]"
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "[This PDF appears to contain no extractable text. It may be a scanned document.]"
	}
	return text
}
