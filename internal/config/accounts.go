package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"mailpipe/internal/models"
)

type accountsFile struct {
	Accounts []accountEntry `toml:"accounts"`
}

// accountEntry keeps tls optional so an omitted key means TLS, as for env accounts
type accountEntry struct {
	ID       string `toml:"id"`
	Email    string `toml:"email"`
	Name     string `toml:"name"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	TLS      *bool  `toml:"tls"`
}

func (e accountEntry) account() models.EmailAccount {
	tls := true
	if e.TLS != nil {
		tls = *e.TLS
	}
	return models.EmailAccount{
		ID:       e.ID,
		Email:    e.Email,
		Name:     e.Name,
		Host:     e.Host,
		Port:     e.Port,
		User:     e.User,
		Password: e.Password,
		TLS:      tls,
	}
}

// LoadAccounts returns the configured mailbox accounts. ACCOUNTS_FILE wins when
// set; otherwise numbered EMAIL<n>/IMAP_*<n> variables are read until the first gap.
func (c *Config) LoadAccounts() ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	if c.AccountsFile != "" {
		var file accountsFile
		if _, err := toml.DecodeFile(c.AccountsFile, &file); err != nil {
			return nil, fmt.Errorf("failed to decode accounts file %s: %w", c.AccountsFile, err)
		}
		for _, entry := range file.Accounts {
			accounts = append(accounts, entry.account())
		}
	} else {
		accounts = accountsFromEnv()
	}

	seen := make(map[string]struct{}, len(accounts))
	for i := range accounts {
		acc := &accounts[i]
		if acc.ID == "" {
			acc.ID = fmt.Sprintf("account%d", i+1)
		}
		if acc.Port == 0 {
			acc.Port = 993
		}
		if acc.User == "" {
			acc.User = acc.Email
		}
		if acc.Host == "" || acc.User == "" {
			return nil, fmt.Errorf("account %s: host and user are required", acc.ID)
		}
		if _, dup := seen[acc.ID]; dup {
			return nil, fmt.Errorf("account %s: duplicate account id", acc.ID)
		}
		seen[acc.ID] = struct{}{}
	}

	return accounts, nil
}

func accountsFromEnv() []models.EmailAccount {
	var accounts []models.EmailAccount
	for n := 1; ; n++ {
		suffix := strconv.Itoa(n)
		host := os.Getenv("IMAP_HOST" + suffix)
		email := os.Getenv("EMAIL" + suffix)
		if host == "" && email == "" {
			break
		}

		accounts = append(accounts, models.EmailAccount{
			ID:       getEnv("ACCOUNT_ID"+suffix, "account"+suffix),
			Email:    email,
			Host:     host,
			Port:     getEnvInt("IMAP_PORT"+suffix, 993),
			User:     os.Getenv("IMAP_USER" + suffix),
			Password: os.Getenv("IMAP_PASSWORD" + suffix),
			TLS:      getEnvBool("IMAP_TLS"+suffix, true),
		})
	}
	return accounts
}
