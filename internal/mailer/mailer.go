// Package mailer composes the application's transactional emails and
// implements the dunning notifier consumed by the reconciliation engine.
package mailer

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/internal/storage"
	"github.com/mfromawe/hyperhash/pkg/email"
)

// Config holds mailer settings loaded from the environment.
type Config struct {
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

// userLookup is the slice of the user store the mailer needs.
type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
}

// Mailer sends the application's transactional emails.
type Mailer struct {
	sender email.Sender
	users  userLookup
	cfg    Config
}

// New creates a mailer.
func New(sender email.Sender, users userLookup, cfg Config) *Mailer {
	return &Mailer{sender: sender, users: users, cfg: cfg}
}

var verificationTmpl = template.Must(template.New("verification").Parse(`
<p>Welcome to HyperHash!</p>
<p>Confirm your email address by clicking the link below:</p>
<p><a href="{{.Link}}">Verify my email</a></p>
<p>If you did not create an account, you can ignore this message.</p>
`))

var paymentFailedTmpl = template.Must(template.New("payment_failed").Parse(`
<p>We could not process your latest subscription payment.</p>
<p>Your plan stays active for now, but please update your payment method
to avoid losing access to your paid features.</p>
<p><a href="{{.Link}}">Manage subscription</a></p>
`))

// SendVerification sends the email confirmation link to a new user.
func (m *Mailer) SendVerification(ctx context.Context, to, verifyToken string) error {
	var body strings.Builder
	err := verificationTmpl.Execute(&body, struct{ Link string }{
		Link: fmt.Sprintf("%s/api/auth/verify-email?token=%s", m.cfg.AppBaseURL, verifyToken),
	})
	if err != nil {
		return fmt.Errorf("mailer: render verification email: %w", err)
	}

	return m.sender.Send(ctx, email.Message{
		To:       to,
		Subject:  "Verify your HyperHash email",
		BodyHTML: body.String(),
		Tag:      "email-verification",
	})
}

// NotifyPaymentFailed implements subscription.Notifier. It resolves the
// user's email and sends the dunning notice.
func (m *Mailer) NotifyPaymentFailed(ctx context.Context, userID uuid.UUID) error {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("mailer: resolve user %s: %w", userID, err)
	}

	var body strings.Builder
	err = paymentFailedTmpl.Execute(&body, struct{ Link string }{
		Link: m.cfg.AppBaseURL + "/account/billing",
	})
	if err != nil {
		return fmt.Errorf("mailer: render payment failed email: %w", err)
	}

	return m.sender.Send(ctx, email.Message{
		To:       user.Email,
		Subject:  "Action needed: payment failed",
		BodyHTML: body.String(),
		Tag:      "payment-failed",
	})
}
