package utils

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
)

func init() {
	imap.CharsetReader = charset.Reader
}

// EmailClient sends mail over SMTP and polls a mailbox over IMAP. It is
// the transport behind the "email" messaging channel and the inbound
// email trigger source.
type EmailClient struct {
	smtpHost     string
	smtpPort     int
	imapHost     string
	imapPort     int
	username     string
	password     string
	imapClient   *client.Client
	connected    bool
	lastActivity time.Time
}

// EmailMessage represents an email message
type EmailMessage struct {
	From      string            `json:"from"`
	To        []string          `json:"to"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Headers   map[string]string `json:"headers,omitempty"`
	Date      time.Time         `json:"date,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
}

// NewEmailClient creates a new email client
func NewEmailClient(smtpHost string, smtpPort int, imapHost string, imapPort int, username, password string) *EmailClient {
	return &EmailClient{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		imapHost:     imapHost,
		imapPort:     imapPort,
		username:     username,
		password:     password,
		lastActivity: time.Now(),
	}
}

// Connect connects and authenticates the IMAP side. SMTP sends use
// smtp.SendMail per message and need no standing connection.
func (c *EmailClient) Connect() error {
	imapAddr := fmt.Sprintf("%s:%d", c.imapHost, c.imapPort)
	imapClient, err := client.DialTLS(imapAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := imapClient.Login(c.username, c.password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("IMAP authentication failed: %w", err)
	}

	c.imapClient = imapClient
	c.connected = true
	c.lastActivity = time.Now()
	return nil
}

// Close logs out of the IMAP server
func (c *EmailClient) Close() error {
	if c.imapClient == nil {
		c.connected = false
		return nil
	}
	err := c.imapClient.Logout()
	c.imapClient = nil
	c.connected = false
	return err
}

// ensureConnected reconnects after inactivity; IMAP servers drop idle sessions
func (c *EmailClient) ensureConnected() error {
	if !c.connected || time.Since(c.lastActivity) > 5*time.Minute {
		if c.connected {
			c.Close()
		}
		return c.Connect()
	}
	return nil
}

// SendEmail sends a plain-text email
func (c *EmailClient) SendEmail(message EmailMessage) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", message.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(message.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", message.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	for key, value := range message.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	fmt.Fprintf(&buf, "\r\n%s", message.Body)

	auth := smtp.PlainAuth("", c.username, c.password, c.smtpHost)
	smtpAddr := fmt.Sprintf("%s:%d", c.smtpHost, c.smtpPort)
	if err := smtp.SendMail(smtpAddr, auth, message.From, message.To, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// FetchUnseen returns unseen messages from INBOX, marking them as read
// so the next poll does not deliver them again.
func (c *EmailClient) FetchUnseen(limit uint32) ([]EmailMessage, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	if _, err := c.imapClient.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.imapClient.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(uids) == 0 {
		return []EmailMessage{}, nil
	}
	if limit > 0 && uint32(len(uids)) > limit {
		uids = uids[len(uids)-int(limit):]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.imapClient.Fetch(seqSet, items, messages)
	}()

	var emails []EmailMessage
	for msg := range messages {
		email := EmailMessage{
			Subject:   msg.Envelope.Subject,
			Date:      msg.Envelope.Date,
			MessageID: msg.Envelope.MessageId,
		}
		if len(msg.Envelope.From) > 0 {
			email.From = formatAddress(msg.Envelope.From[0])
		}
		for _, addr := range msg.Envelope.To {
			email.To = append(email.To, formatAddress(addr))
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	// Mark fetched messages seen
	flags := []interface{}{imap.SeenFlag}
	if err := c.imapClient.Store(seqSet, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return nil, fmt.Errorf("failed to mark messages seen: %w", err)
	}

	c.lastActivity = time.Now()
	return emails, nil
}

// formatAddress formats an IMAP address
func formatAddress(addr *imap.Address) string {
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName)
	}
	return fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
}
