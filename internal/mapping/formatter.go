// Package mapping turns decoded gitopia events into notifications.
//
// Every known action has a rule: the lookups it needs and a pure format
// function. Mapper performs the lookups, Formatter builds the notification
// from attributes plus lookup results without any I/O.
package mapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
)

// Lookups carries the API data a rule asked for.
type Lookups struct {
	Creator    domain.User
	OwnerName  string
	Repository domain.RepositoryRef
	Assignees  []domain.User
	Reviewers  []domain.User
}

// Formatter builds notifications. It is safe for concurrent use.
type Formatter struct {
	baseURL string
	now     func() time.Time
}

func NewFormatter(baseURL string, now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{baseURL: strings.TrimRight(baseURL, "/"), now: now}
}

// Format builds the notification for attrs. It returns ErrUnhandledAction
// for actions without a rule.
func (f *Formatter) Format(attrs domain.EventAttributes, l Lookups) (*domain.Notification, error) {
	action := attrs.Action()
	r, ok := rules[action]
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnhandledAction, action)
	}
	return f.format(r, attrs, l)
}

func (f *Formatter) format(r rule, attrs domain.EventAttributes, l Lookups) (*domain.Notification, error) {
	ar := &attrReader{attrs: attrs}
	n, err := r.format(f, ar, l)
	if err != nil {
		return nil, err
	}
	if err := ar.err(); err != nil {
		return nil, err
	}
	if r.needs&needCreator != 0 {
		n.Author = f.author(l.Creator)
	}
	n.Timestamp = f.now()
	return n, nil
}

func (f *Formatter) url(parts ...string) string {
	return f.baseURL + "/" + strings.Join(parts, "/")
}

func (f *Formatter) author(u domain.User) *domain.Author {
	return &domain.Author{
		Name:    u.Username,
		URL:     f.url(u.Username),
		IconURL: u.AvatarURL,
	}
}

func (f *Formatter) userLinks(users []domain.User) string {
	links := make([]string, 0, len(users))
	for _, u := range users {
		links = append(links, mdLink(u.Username, f.url(u.Username)))
	}
	return strings.Join(links, ", ")
}

var linkTextEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)

// mdLink renders a markdown link, escaping brackets in the text.
func mdLink(text, url string) string {
	return "[" + linkTextEscaper.Replace(text) + "](" + url + ")"
}

// attrReader records every required attribute that is missing.
type attrReader struct {
	attrs   domain.EventAttributes
	missing []string
}

func (r *attrReader) get(key string) string {
	v, ok := r.attrs[key]
	if !ok {
		r.missing = append(r.missing, key)
	}
	return v
}

func (r *attrReader) optional(key string) string {
	return r.attrs[key]
}

func (r *attrReader) err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrMissingAttribute, strings.Join(r.missing, ", "))
}

type gitRef struct {
	Name string `json:"name"`
	Sha  string `json:"sha"`
}

type coin struct {
	Denom  string      `json:"denom"`
	Amount json.Number `json:"amount"`
}

func parseJSONAttr[T any](r *attrReader, key string) ([]T, error) {
	raw, ok := r.attrs[key]
	if !ok {
		r.missing = append(r.missing, key)
		return nil, r.err()
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return out, nil
}

func parseUnixSeconds(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiry %q: %w", s, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}
