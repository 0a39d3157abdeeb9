// Package security screens outbound attachments before they reach the
// provider. The provider enforces its own rules server-side; screening
// locally gives the caller a precise error instead of a burned send attempt.
package security

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// AttachmentPolicy validates attachment names, types and sizes.
type AttachmentPolicy struct {
	maxDecodedSize      int64
	dangerousExtensions map[string]bool
}

// NewAttachmentPolicy creates the default policy: 10MB per attachment and
// the usual executable extension blocklist.
func NewAttachmentPolicy() *AttachmentPolicy {
	return &AttachmentPolicy{
		maxDecodedSize: 10 * 1024 * 1024,
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".php": true,
			".asp": true,
			".jsp": true,
		},
	}
}

// Check validates one attachment. A nil error means it may be sent.
func (p *AttachmentPolicy) Check(att domain.OutboundAttachment) error {
	if att.Filename == "" {
		return fmt.Errorf("attachment has no filename")
	}
	if strings.ContainsAny(att.Filename, "/\\") {
		return fmt.Errorf("attachment filename %q contains path separators", att.Filename)
	}

	ext := strings.ToLower(filepath.Ext(att.Filename))
	if p.dangerousExtensions[ext] {
		return fmt.Errorf("attachment type %s is not allowed", ext)
	}

	// Content is base64; reject on the decoded size.
	decoded := base64.StdEncoding.DecodedLen(len(att.Content))
	if int64(decoded) > p.maxDecodedSize {
		return fmt.Errorf("attachment %q exceeds %d bytes", att.Filename, p.maxDecodedSize)
	}
	if _, err := base64.StdEncoding.DecodeString(att.Content); err != nil {
		return fmt.Errorf("attachment %q is not valid base64: %w", att.Filename, err)
	}

	return nil
}

// CheckAll validates every attachment on a request.
func (p *AttachmentPolicy) CheckAll(atts []domain.OutboundAttachment) error {
	for _, att := range atts {
		if err := p.Check(att); err != nil {
			return err
		}
	}
	return nil
}
