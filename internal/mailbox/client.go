package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/ordertrack/internal/config"
)

// Client wraps go-imap v2 for polling the order-status mailbox. Each
// FetchBatch call opens a fresh connection and logs out when done; the
// mailbox volume is low enough that connection reuse is not worth the
// reconnect bookkeeping.
type Client struct {
	host           string
	port           string
	username       string
	password       string
	tls            bool
	connectTimeout time.Duration
	fallbackWindow int
	fetchLimit     int
}

// NewClient creates a mailbox client from configuration.
func NewClient(cfg config.MailboxConfig, poll config.PollConfig) *Client {
	return &Client{
		host:           cfg.Host,
		port:           cfg.Port,
		username:       cfg.Username,
		password:       cfg.Password,
		tls:            cfg.TLS,
		connectTimeout: cfg.ConnectTimeout,
		fallbackWindow: poll.FallbackWindowDays,
		fetchLimit:     poll.FetchLimit,
	}
}

// session is one authenticated connection. It keeps a handle on the raw
// socket so every IMAP operation runs under a deadline; a stuck server
// surfaces as an I/O timeout instead of wedging the poll cycle.
type session struct {
	client  *imapclient.Client
	conn    net.Conn
	timeout time.Duration
}

// extend pushes the socket deadline forward to cover the next operation.
// An earlier context deadline wins.
func (s *session) extend(ctx context.Context) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
}

func (s *session) close() {
	// Logout is bounded by the same deadline as any other operation; a
	// dead peer must not stall teardown.
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	_ = s.client.Logout().Wait()
	_ = s.conn.Close()
}

// connect dials the IMAP server and authenticates. The dial, TLS
// handshake, greeting, and login are all bounded by the configured
// connect timeout and the caller's context.
func (c *Client) connect(ctx context.Context) (*session, error) {
	addr := c.host + ":" + c.port

	dialer := &net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial " + addr, Err: err}
	}

	// Deadlines on the raw socket bound the TLS handshake too.
	sess := &session{conn: conn, timeout: c.connectTimeout}
	sess.extend(ctx)

	tlsConfig := &tls.Config{ServerName: c.host}
	if c.tls {
		sess.client = imapclient.New(tls.Client(conn, tlsConfig), nil)
	} else {
		client, err := imapclient.NewStartTLS(conn, &imapclient.Options{
			TLSConfig: tlsConfig,
		})
		if err != nil {
			_ = conn.Close()
			return nil, &ConnectionError{Op: "starttls " + addr, Err: err}
		}
		sess.client = client
	}

	if err := sess.client.Login(c.username, c.password).Wait(); err != nil {
		sess.close()
		return nil, &ConnectionError{
			Op:  fmt.Sprintf("login %s", c.username),
			Err: err,
		}
	}

	return sess, nil
}

// Validate connects, authenticates, and selects INBOX, returning the first
// error encountered. Used as a startup check.
func (c *Client) Validate(ctx context.Context) error {
	sess, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	sess.extend(ctx)
	if _, err := sess.client.Select("INBOX", nil).Wait(); err != nil {
		return &ConnectionError{Op: "selecting INBOX", Err: err}
	}
	return nil
}

// FetchBatch connects to the mailbox, searches for unread messages
// (falling back to all messages within the trailing fallback window when
// none are unread), and fetches the raw payload of at most fetchLimit of
// the most recent matches. Fetched messages are marked seen.
func (c *Client) FetchBatch(ctx context.Context) ([]RawMessage, error) {
	sess, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	sess.extend(ctx)
	selData, err := sess.client.Select("INBOX", nil).Wait()
	if err != nil {
		return nil, &ConnectionError{Op: "selecting INBOX", Err: err}
	}

	uids, err := c.searchWithFallback(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	if c.fetchLimit > 0 && len(uids) > c.fetchLimit {
		uids = uids[len(uids)-c.fetchLimit:]
	}

	uidSet := imap.UIDSetNum(uids...)

	// Peek is left off so the fetch marks messages seen, keeping the
	// unread search from returning them again on the next cycle.
	bodySection := &imap.FetchItemBodySection{}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	sess.extend(ctx)
	fetchCmd := sess.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []RawMessage
	for {
		sess.extend(ctx)
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		// A message that fails to collect is dropped from this batch
		// only; the fallback search picks it up again next cycle.
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		raw := rawFromBuffer(buf, buf.FindBodySection(bodySection), selData.UIDValidity)
		messages = append(messages, raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, &FetchError{Err: err}
	}

	return messages, nil
}

// searchWithFallback searches for unseen messages first. An empty result
// falls back to all messages received within the trailing window; some
// external mail clients mark messages read before this pipeline sees them.
func (c *Client) searchWithFallback(
	ctx context.Context, sess *session,
) ([]imap.UID, error) {
	unseen := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	sess.extend(ctx)
	searchData, err := sess.client.UIDSearch(unseen, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unread messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) > 0 {
		return uids, nil
	}

	since := time.Now().AddDate(0, 0, -c.fallbackWindow)
	recent := &imap.SearchCriteria{Since: since}

	sess.extend(ctx)
	searchData, err = sess.client.UIDSearch(recent, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching recent messages: %w", err)
	}

	return searchData.AllUIDs(), nil
}

// rawFromBuffer extracts a RawMessage from a FetchMessageBuffer.
func rawFromBuffer(
	buf *imapclient.FetchMessageBuffer, body []byte, uidValidity uint32,
) RawMessage {
	raw := RawMessage{
		UID: uint32(buf.UID),
		Raw: body,
	}

	if buf.Envelope != nil {
		raw.MessageID = buf.Envelope.MessageID
		raw.Subject = buf.Envelope.Subject
		raw.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				raw.From = from.Name
			} else {
				raw.From = from.Addr()
			}
		}
	}

	if raw.MessageID == "" {
		raw.MessageID = fallbackMessageID(raw.UID, uidValidity)
	}

	return raw
}

// fallbackMessageID synthesizes a ledger key for messages without a
// Message-ID header. UIDs repeat across mailbox generations, so the ID is
// qualified with the mailbox UIDVALIDITY to keep a recreated mailbox from
// colliding with old ledger rows.
func fallbackMessageID(uid, uidValidity uint32) string {
	return fmt.Sprintf("uid-%d@uidvalidity-%d", uid, uidValidity)
}
