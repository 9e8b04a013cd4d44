package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopchat/autoreply-backend/internal/types"
)

const (
	BandMorning   = "morning"
	BandAfternoon = "afternoon"
	BandEvening   = "evening"

	snippetMaxLen = 80
)

// GreetingBand maps a tenant-local clock reading onto the three greeting
// bands: morning 06:00-11:59, afternoon 12:00-17:59, evening otherwise.
func GreetingBand(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 6 && h < 12:
		return BandMorning
	case h >= 12 && h < 18:
		return BandAfternoon
	default:
		return BandEvening
	}
}

// ComposeGreeting builds the greeting text for one response unit. It is a
// pure function of the tenant config, the grouped messages and the clock
// value handed in; no I/O happens here.
func ComposeGreeting(tenant *types.Tenant, group []*types.Message, now time.Time) string {
	loc := tenantLocation(tenant)
	band := GreetingBand(now.In(loc))

	var b strings.Builder
	b.WriteString(greetingLine(tenant, band))

	switch len(group) {
	case 0:
	case 1:
		b.WriteString("\n")
		b.WriteString(singleMessageLine(group[0]))
	default:
		b.WriteString(fmt.Sprintf("\nWe received your %d messages:", len(group)))
		for _, msg := range group {
			b.WriteString("\n- (")
			b.WriteString(idSuffix(msg.PlatformMessageID))
			b.WriteString(") ")
			b.WriteString(messageSnippet(msg))
		}
		b.WriteString("\nWe will get back to you on all of them shortly.")
	}
	return b.String()
}

func greetingLine(tenant *types.Tenant, band string) string {
	if tenant.GreetingTemplate != nil && strings.TrimSpace(*tenant.GreetingTemplate) != "" {
		line := *tenant.GreetingTemplate
		line = strings.ReplaceAll(line, "{{name}}", tenant.DisplayName)
		line = strings.ReplaceAll(line, "{{band}}", band)
		return line
	}
	return fmt.Sprintf("Good %s! Welcome to %s.", band, tenant.DisplayName)
}

func singleMessageLine(msg *types.Message) string {
	if msg.Text == nil || strings.TrimSpace(*msg.Text) == "" {
		return "We received your message and will get back to you shortly."
	}
	return fmt.Sprintf("We received your message %q and will get back to you shortly.", messageSnippet(msg))
}

func messageSnippet(msg *types.Message) string {
	if msg.Text == nil {
		return "[attachment]"
	}
	text := strings.TrimSpace(*msg.Text)
	if text == "" {
		return "[attachment]"
	}
	runes := []rune(text)
	if len(runes) <= snippetMaxLen {
		return text
	}
	return string(runes[:snippetMaxLen]) + "..."
}

// idSuffix is the short tail of a platform message id, enough for a
// customer-visible reference without echoing the whole id.
func idSuffix(id string) string {
	const n = 6
	if len(id) <= n {
		return id
	}
	return id[len(id)-n:]
}

func tenantLocation(tenant *types.Tenant) *time.Location {
	if tenant == nil || strings.TrimSpace(tenant.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
