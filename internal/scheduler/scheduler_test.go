package scheduler

import (
	"testing"

	"github.com/lohithk/tallysync/internal/domain"
)

func TestCronSpec(t *testing.T) {
	cases := []struct {
		name string
		job  domain.SyncJob
		want string
	}{
		{
			name: "interval",
			job:  domain.SyncJob{Trigger: domain.TriggerInterval, IntervalMinutes: 15},
			want: "@every 15m",
		},
		{
			name: "daily",
			job:  domain.SyncJob{Trigger: domain.TriggerDaily, AtTime: "06:30"},
			want: "30 6 * * *",
		},
		{
			name: "monthly",
			job:  domain.SyncJob{Trigger: domain.TriggerMonthly, AtTime: "23:00", DayOfMonth: 1},
			want: "0 23 1 * *",
		},
		{
			name: "yearly",
			job:  domain.SyncJob{Trigger: domain.TriggerYearly, AtTime: "04:15", MonthDay: "04-01"},
			want: "15 4 1 4 *",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CronSpec(tc.job)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCronSpecRejectsBadTriggers(t *testing.T) {
	bad := []domain.SyncJob{
		{Trigger: domain.TriggerInterval, IntervalMinutes: 0},
		{Trigger: domain.TriggerDaily, AtTime: "6:3:0"},
		{Trigger: domain.TriggerDaily, AtTime: "25:00"},
		{Trigger: domain.TriggerDaily, AtTime: "12:75"},
		{Trigger: domain.TriggerMonthly, AtTime: "12:00", DayOfMonth: 0},
		{Trigger: domain.TriggerMonthly, AtTime: "12:00", DayOfMonth: 32},
		{Trigger: domain.TriggerYearly, AtTime: "12:00", MonthDay: "13-01"},
		{Trigger: domain.TriggerYearly, AtTime: "12:00", MonthDay: "0101"},
		{Trigger: domain.TriggerKind("hourly")},
	}
	for _, job := range bad {
		if _, err := CronSpec(job); err == nil {
			t.Fatalf("expected rejection for %+v", job)
		}
	}
}
