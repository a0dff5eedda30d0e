package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// ErrInvalidEmail is returned for input that is not an email address.
var ErrInvalidEmail = errors.New("invalid email address")

// EmailSplit breaks an email address into its mailbox and domain.
type EmailSplit struct{}

// NewEmailSplit creates the Email Split probe.
func NewEmailSplit() *EmailSplit { return &EmailSplit{} }

// Name implements module.Module.
func (*EmailSplit) Name() string { return NameEmailSplit }

// Description implements module.Module.
func (*EmailSplit) Description() string {
	return "Splits an email address into username and mail domain"
}

// InputTypes implements module.Module.
func (*EmailSplit) InputTypes() []string { return []string{model.InputEmail} }

// Run implements module.Module.
func (*EmailSplit) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)
	report(0, 1)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	address, local, domain, err := splitEmail(target.Email)
	if err != nil {
		return nil, nil, err
	}

	username, tag, _ := strings.Cut(local, "+")

	email := model.NewEntity(model.EntityEmail, address).
		WithAttribute("local_part", local).
		WithAttribute("domain", domain).
		WithAttribute("source", "input")
	user := model.NewEntity(model.EntityUsername, username).
		WithAttribute("source", "email_local_part")
	if tag != "" {
		user = user.WithAttribute("subaddress", tag)
	}
	host := model.NewEntity(model.EntityDomain, domain).
		WithAttribute("source", "email_domain")

	report(1, 1)
	return []model.Entity{email, user, host}, []model.Relation{
		model.NewRelation(user, email, "local_part_of"),
		model.NewRelation(email, host, "hosted_on"),
	}, nil
}

// splitEmail normalizes raw and returns the address, its local part and its
// ASCII domain.
func splitEmail(raw string) (address, local, domain string, err error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "mailto:"))
	at := strings.LastIndex(raw, "@")
	if at <= 0 || at == len(raw)-1 {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}

	local = strings.ToLower(raw[:at])
	domain, err = normalizeDomain(raw[at+1:])
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %q: %w", ErrInvalidEmail, raw, err)
	}
	return local + "@" + domain, local, domain, nil
}
