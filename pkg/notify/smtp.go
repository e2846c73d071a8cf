package notify

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/dajohi/goemail"
)

// SMTPNotifier sends account emails through an SMTP relay. When any of
// the credentials are missing the notifier is disabled and sends become
// no-ops, which keeps dev setups working without a mail account.
type SMTPNotifier struct {
	smtp        *goemail.SMTP
	mailName    string
	mailAddress string
	disabled    bool
}

// NewSMTPNotifier creates an SMTP notifier. host is "host:port"; from is
// an RFC 5322 address, optionally with a display name.
func NewSMTPNotifier(host, user, password, from string, skipVerify bool) (*SMTPNotifier, error) {
	if host == "" || user == "" || password == "" {
		return &SMTPNotifier{disabled: true}, nil
	}

	u, err := url.Parse(fmt.Sprintf("smtps://%v:%v@%v", user, password, host))
	if err != nil {
		return nil, err
	}

	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: skipVerify,
	}

	smtp, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, err
	}

	return &SMTPNotifier{
		smtp:        smtp,
		mailName:    addr.Name,
		mailAddress: addr.Address,
	}, nil
}

// IsEnabled reports whether the notifier will actually send mail
func (n *SMTPNotifier) IsEnabled() bool {
	return !n.disabled
}

func (n *SMTPNotifier) SendVerification(email, link string) error {
	body := fmt.Sprintf(`<p>Hello,</p>
<p>Please verify your email by clicking on the following link.</p>
<p><a href='%[1]v' target='_blank'>%[1]v</a></p>
<p>If you did not create an account on FishDeas, please ignore this email.</p>
<p>Thanks,</p>
<p>FishDeas Team</p>`, link)

	return n.send(email, "[FishDeas] Please verify your email", body)
}

func (n *SMTPNotifier) SendResetCode(email, code string) error {
	body := fmt.Sprintf(`<p>Hello, %v</p>
<p>Your reset password PIN is <strong>%v</strong>. It is valid for 1 hour.</p>
<p>If you did not request a password reset, please ignore this email.</p>
<p>Thanks,</p>
<p>FishDeas Team</p>`, email, code)

	return n.send(email, "[FishDeas] Reset Password PIN", body)
}

func (n *SMTPNotifier) send(recipient, subject, body string) error {
	if n.disabled {
		return nil
	}

	msg := goemail.NewHTMLMessage(n.mailAddress, subject, body)
	msg.SetName(n.mailName)
	msg.AddTo(recipient)

	return n.smtp.Send(msg)
}
