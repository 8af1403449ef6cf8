// Package userdir is the user directory edgeauthd runs with: a YAML seed file
// loaded into memory, with OAuth sign-ins creating accounts on first use.
package userdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/session"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Entry is one account in the seed file.
type Entry struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Image        string `yaml:"image"`
	Role         string `yaml:"role"`
	PasswordHash string `yaml:"password_hash"`
}

type seedFile struct {
	Users []Entry `yaml:"users"`
}

// Directory implements edgeauth.UserProvider and edgeauth.PasswordUpgrader.
type Directory struct {
	mu      sync.RWMutex
	byID    map[string]edgeauth.UserRecord
	byEmail map[string]string
	// links maps provider/subject to a user id.
	links map[string]string
}

// New returns a directory holding entries. IDs left empty are generated.
func New(entries ...Entry) (*Directory, error) {
	d := &Directory{
		byID:    make(map[string]edgeauth.UserRecord, len(entries)),
		byEmail: make(map[string]string, len(entries)),
		links:   make(map[string]string),
	}
	for _, e := range entries {
		if err := d.add(e); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Load reads a seed file. A missing file yields an empty directory.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New()
	}
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return New(f.Users...)
}

func (d *Directory) add(e Entry) error {
	email := normalizeEmail(e.Email)
	if email == "" {
		return errors.New("user entry without email")
	}
	if _, dup := d.byEmail[email]; dup {
		return fmt.Errorf("duplicate user email %q", email)
	}
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, dup := d.byID[id]; dup {
		return fmt.Errorf("duplicate user id %q", id)
	}
	d.byID[id] = edgeauth.UserRecord{
		ID:           id,
		Email:        email,
		Name:         e.Name,
		Image:        e.Image,
		Role:         session.ParseRole(e.Role),
		PasswordHash: e.PasswordHash,
	}
	d.byEmail[email] = id
	return nil
}

// Len reports the number of accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func (d *Directory) GetUserByID(_ context.Context, id string) (edgeauth.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.byID[id]
	if !ok {
		return edgeauth.UserRecord{}, fmt.Errorf("user %q: %w", id, edgeauth.ErrNotFound)
	}
	return rec, nil
}

func (d *Directory) GetUserByEmail(_ context.Context, email string) (edgeauth.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return edgeauth.UserRecord{}, edgeauth.ErrNotFound
	}
	return d.byID[id], nil
}

// UpsertOAuthUser links ident to the account with the same email, creating a
// password-less account when none exists. A linked account keeps its role.
func (d *Directory) UpsertOAuthUser(_ context.Context, ident edgeauth.ExternalIdentity) (edgeauth.UserRecord, error) {
	email := normalizeEmail(ident.Email)
	if email == "" || ident.Provider == "" || ident.Subject == "" {
		return edgeauth.UserRecord{}, errors.New("incomplete external identity")
	}
	link := ident.Provider + "/" + ident.Subject

	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.links[link]
	if !ok {
		id, ok = d.byEmail[email]
	}
	if ok {
		rec := d.byID[id]
		if rec.Name == "" {
			rec.Name = ident.Name
		}
		if ident.Image != "" {
			rec.Image = ident.Image
		}
		d.byID[id] = rec
		d.links[link] = id
		return rec, nil
	}

	rec := edgeauth.UserRecord{
		ID:    uuid.NewString(),
		Email: email,
		Name:  ident.Name,
		Image: ident.Image,
		Role:  session.RoleUser,
	}
	d.byID[rec.ID] = rec
	d.byEmail[email] = rec.ID
	d.links[link] = rec.ID
	return rec, nil
}

// UpdatePasswordHash replaces a stored hash after a legacy-hash upgrade.
func (d *Directory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.byID[id]
	if !ok {
		return edgeauth.ErrNotFound
	}
	rec.PasswordHash = hash
	d.byID[id] = rec
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
