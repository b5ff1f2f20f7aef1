package executor

import (
	"context"
	"fmt"

	"github.com/rezkam/jobcore/internal/domain"
)

// Mail is the email job type's reference adapter. It does not speak SMTP
// directly: production deployments wire Sender to a real transport. The
// default Sender only validates the payload shape and stamps a message id,
// matching spec §1's stance that delivery mechanics are an external
// collaborator.
type Mail struct {
	Sender func(ctx context.Context, to, subject, body string) (messageID string, err error)
}

func NewMail(sender func(ctx context.Context, to, subject, body string) (string, error)) *Mail {
	if sender == nil {
		sender = stubSend
	}
	return &Mail{Sender: sender}
}

func stubSend(_ context.Context, to, _, _ string) (string, error) {
	return "stub-" + to, nil
}

func (m *Mail) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	to, _ := payload["to"].(string)
	subject, _ := payload["subject"].(string)
	body, _ := payload["body"].(string)
	if to == "" || subject == "" {
		return nil, fmt.Errorf("%w: email executor requires payload.to and payload.subject", domain.ErrConfigurationError)
	}

	id, err := m.Sender(ctx, to, subject, body)
	if err != nil {
		return nil, err
	}
	return domain.Bag{"message_id": id, "to": to, "subject": subject}, nil
}
