// Package credential resolves the mailbox password from the OS keyring
// when the configuration file and environment leave it unset, so the
// secret never has to live in plain text on disk.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName        = "ordertrack"
	mailboxPasswordKey = "mailbox_password"
)

func open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/ordertrack/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("ordertrack-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// MailboxPassword retrieves the IMAP account password from the system
// keyring.
func MailboxPassword() (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(mailboxPasswordKey)
	if err != nil {
		return "", fmt.Errorf("reading mailbox password from keyring: %w", err)
	}

	return string(item.Data), nil
}

// StoreMailboxPassword saves the IMAP account password to the system
// keyring for later retrieval by MailboxPassword.
func StoreMailboxPassword(password string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  mailboxPasswordKey,
		Data: []byte(password),
	})
	if err != nil {
		return fmt.Errorf("storing mailbox password in keyring: %w", err)
	}

	return nil
}
