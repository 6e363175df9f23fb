package templates

import (
	"strings"
	"time"
)

const humanLayout = "02 January 2006, 15:04 UTC"

// Option pattern
type Option func(*EmailData)

func WithName(name string) Option    { return func(d *EmailData) { d.Name = strings.TrimSpace(name) } }
func WithIP(ip string) Option        { return func(d *EmailData) { d.IP = ip } }
func WithUserAgent(ua string) Option { return func(d *EmailData) { d.UserAgent = ua } }
func WithSupportURL(u string) Option { return func(d *EmailData) { d.SupportURL = u } }
func WithAppName(name string) Option { return func(d *EmailData) { d.AppName = name } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format(humanLayout)
	}
}

func WithLockedUntil(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.LockedUntil = utc
		d.LockedUntilText = utc.Format(humanLayout)
	}
}

// New builds EmailData for a recipient and applies options in order.
func New(email string, opts ...Option) EmailData {
	d := EmailData{Email: email}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}
