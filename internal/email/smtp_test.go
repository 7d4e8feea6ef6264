package email

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/queue-api/internal/config"
	"github.com/jwalitptl/queue-api/pkg/logger"
)

func TestNewMessageHeaders(t *testing.T) {
	m := newMessage("queue@example.com", "pat@example.com", "Appointment confirmed", "see you soon")

	assert.Equal(t, []string{"queue@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"pat@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Appointment confirmed"}, m.GetHeader("Subject"))
}

func TestNewPicksSender(t *testing.T) {
	_, ok := New(config.SMTPConfig{}, logger.Nop()).(*LogService)
	assert.True(t, ok)

	_, ok = New(config.SMTPConfig{Host: "smtp.example.com", Port: 587}, logger.Nop()).(*SMTPService)
	assert.True(t, ok)
}

func TestSMTPServiceHonoursContext(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation and never answers.
	svc := NewSMTPService(config.SMTPConfig{Host: "192.0.2.1", Port: 25, From: "queue@example.com"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.SendCustom(ctx, "pat@example.com", "hello", "body")
	require.Error(t, err)
}

func TestLogServiceNeverFails(t *testing.T) {
	assert.NoError(t, NewLogService(logger.Nop()).SendCustom(context.Background(), "a@example.com", "s", "c"))
}
