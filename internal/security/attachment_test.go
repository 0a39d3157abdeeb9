package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

func TestAttachmentPolicy(t *testing.T) {
	policy := NewAttachmentPolicy()
	content := base64.StdEncoding.EncodeToString([]byte("hello"))

	t.Run("plain document passes", func(t *testing.T) {
		err := policy.Check(domain.OutboundAttachment{Filename: "report.pdf", Content: content})
		assert.NoError(t, err)
	})

	t.Run("executable rejected", func(t *testing.T) {
		err := policy.Check(domain.OutboundAttachment{Filename: "setup.exe", Content: content})
		assert.Error(t, err)
	})

	t.Run("extension check is case insensitive", func(t *testing.T) {
		err := policy.Check(domain.OutboundAttachment{Filename: "SETUP.EXE", Content: content})
		assert.Error(t, err)
	})

	t.Run("path separators rejected", func(t *testing.T) {
		err := policy.Check(domain.OutboundAttachment{Filename: "../etc/passwd", Content: content})
		assert.Error(t, err)
	})

	t.Run("missing filename rejected", func(t *testing.T) {
		err := policy.Check(domain.OutboundAttachment{Content: content})
		assert.Error(t, err)
	})

	t.Run("invalid base64 rejected", func(t *testing.T) {
		err := policy.Check(domain.OutboundAttachment{Filename: "note.txt", Content: "not base64!!!"})
		assert.Error(t, err)
	})

	t.Run("check all stops at first failure", func(t *testing.T) {
		err := policy.CheckAll([]domain.OutboundAttachment{
			{Filename: "ok.txt", Content: content},
			{Filename: "bad.exe", Content: content},
		})
		assert.Error(t, err)
	})
}
