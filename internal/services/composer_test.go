package services

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopchat/autoreply-backend/internal/types"
)

func strPtr(s string) *string { return &s }

func TestGreetingBand(t *testing.T) {
	cases := []struct {
		name string
		hour int
		want string
	}{
		{name: "early_morning_boundary", hour: 6, want: BandMorning},
		{name: "late_morning", hour: 11, want: BandMorning},
		{name: "noon_boundary", hour: 12, want: BandAfternoon},
		{name: "late_afternoon", hour: 17, want: BandAfternoon},
		{name: "evening_boundary", hour: 18, want: BandEvening},
		{name: "midnight", hour: 0, want: BandEvening},
		{name: "pre_dawn", hour: 5, want: BandEvening},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2024, 5, 14, tc.hour, 0, 0, 0, time.UTC)
			if got := GreetingBand(now); got != tc.want {
				t.Fatalf("GreetingBand(%02d:00) = %q, want %q", tc.hour, got, tc.want)
			}
		})
	}
}

func TestComposeGreeting_UsesTenantTimezone(t *testing.T) {
	tenant := &types.Tenant{
		ID:          uuid.New(),
		DisplayName: "Harbor Books",
		Timezone:    "Asia/Ho_Chi_Minh",
	}
	msg := &types.Message{PlatformMessageID: "tz-000001", Text: strPtr("hi")}

	// 23:30 UTC is 06:30 the next day in Ho Chi Minh City.
	now := time.Date(2024, 5, 14, 23, 30, 0, 0, time.UTC)
	text := ComposeGreeting(tenant, []*types.Message{msg}, now)
	if !strings.Contains(text, "Good morning") {
		t.Fatalf("expected morning greeting for tenant-local clock, got:\n%s", text)
	}
}

func TestComposeGreeting_TemplateSubstitution(t *testing.T) {
	tenant := &types.Tenant{
		ID:               uuid.New(),
		DisplayName:      "Luna Flowers",
		Timezone:         "UTC",
		GreetingTemplate: strPtr("Hello from {{name}}, lovely {{band}}!"),
	}
	msg := &types.Message{PlatformMessageID: "tpl-000001", Text: strPtr("hello")}

	now := time.Date(2024, 5, 14, 14, 0, 0, 0, time.UTC)
	text := ComposeGreeting(tenant, []*types.Message{msg}, now)
	if !strings.Contains(text, "Hello from Luna Flowers, lovely afternoon!") {
		t.Fatalf("template not substituted:\n%s", text)
	}
}

func TestComposeGreeting_SingleMessage(t *testing.T) {
	tenant := &types.Tenant{ID: uuid.New(), DisplayName: "Corner Deli", Timezone: "UTC"}
	now := time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)

	t.Run("with text", func(t *testing.T) {
		msg := &types.Message{PlatformMessageID: "one-000001", Text: strPtr("do you have rye bread?")}
		text := ComposeGreeting(tenant, []*types.Message{msg}, now)
		if !strings.Contains(text, "do you have rye bread?") {
			t.Fatalf("single-message reply does not reference the message:\n%s", text)
		}
		if strings.Contains(text, "000001") {
			t.Fatalf("single-message reply should not enumerate id suffixes:\n%s", text)
		}
	})

	t.Run("without text", func(t *testing.T) {
		msg := &types.Message{PlatformMessageID: "one-000002"}
		text := ComposeGreeting(tenant, []*types.Message{msg}, now)
		if !strings.Contains(text, "We received your message") {
			t.Fatalf("non-text message reply malformed:\n%s", text)
		}
	})

	t.Run("long text truncated", func(t *testing.T) {
		long := strings.Repeat("a", 200)
		msg := &types.Message{PlatformMessageID: "one-000003", Text: &long}
		text := ComposeGreeting(tenant, []*types.Message{msg}, now)
		if !strings.Contains(text, "...") {
			t.Fatalf("long message not truncated:\n%s", text)
		}
		if strings.Contains(text, long) {
			t.Fatalf("full 200-char text echoed back:\n%s", text)
		}
	})
}

func TestComposeGreeting_MultiMessageEnumeratesSuffixes(t *testing.T) {
	tenant := &types.Tenant{ID: uuid.New(), DisplayName: "Corner Deli", Timezone: "UTC"}
	now := time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)
	group := []*types.Message{
		{PlatformMessageID: "multi-aa1122", Text: strPtr("first")},
		{PlatformMessageID: "multi-bb3344", Text: strPtr("second")},
		{PlatformMessageID: "multi-cc5566"},
	}

	text := ComposeGreeting(tenant, group, now)
	if !strings.Contains(text, "3 messages") {
		t.Fatalf("count missing:\n%s", text)
	}
	for _, suffix := range []string{"aa1122", "bb3344", "cc5566"} {
		if !strings.Contains(text, "("+suffix+")") {
			t.Fatalf("suffix %q missing:\n%s", suffix, text)
		}
	}
	if !strings.Contains(text, "[attachment]") {
		t.Fatalf("non-text member not represented:\n%s", text)
	}
}

func TestComposeGreeting_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	tenant := &types.Tenant{ID: uuid.New(), DisplayName: "Corner Deli", Timezone: "Mars/Olympus"}
	msg := &types.Message{PlatformMessageID: "utc-000001", Text: strPtr("hi")}

	now := time.Date(2024, 5, 14, 7, 0, 0, 0, time.UTC)
	text := ComposeGreeting(tenant, []*types.Message{msg}, now)
	if !strings.Contains(text, "Good morning") {
		t.Fatalf("expected UTC fallback morning greeting:\n%s", text)
	}
}
