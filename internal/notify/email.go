package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/lohithk/tallysync/internal/domain"
)

// EmailNotifier sends run failure summaries over SMTP with plain auth.
type EmailNotifier struct {
	host string
	port int
	user string
	pass string
	from string
	to   []string

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(host string, port int, user, pass, from string, to []string) *EmailNotifier {
	return &EmailNotifier{
		host: host,
		port: port,
		user: user,
		pass: pass,
		from: from,
		to:   to,
		send: smtp.SendMail,
	}
}

func (n *EmailNotifier) Notify(_ context.Context, run domain.SyncRun) error {
	if n.host == "" || len(n.to) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Tally sync %s: run %s", run.Status, run.ID)
	body := Summary(run)
	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + strings.Join(n.to, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	var auth smtp.Auth
	if n.user != "" {
		auth = smtp.PlainAuth("", n.user, n.pass, n.host)
	}
	if err := n.send(addr, auth, n.from, n.to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
