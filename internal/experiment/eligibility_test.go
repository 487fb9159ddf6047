package experiment

import (
	"testing"

	"github.com/nidhogg/switchyard/internal/session"
)

func TestEligible(t *testing.T) {
	cases := []struct {
		name string
		sess session.Session
		path string
		exp  Experiment
		want bool
	}{
		{
			name: "no filters passes everything",
			sess: session.Session{ID: "s1", Device: session.DeviceDesktop},
			exp:  Experiment{ID: "e1"},
			want: true,
		},
		{
			name: "device match",
			sess: session.Session{ID: "s1", Device: session.DeviceMobile},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{Device: session.DeviceMobile}},
			want: true,
		},
		{
			name: "device mismatch",
			sess: session.Session{ID: "s1", Device: session.DeviceDesktop},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{Device: session.DeviceMobile}},
			want: false,
		},
		{
			name: "referrer substring match",
			sess: session.Session{ID: "s1", Referrer: "https://news.ycombinator.com/item"},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{Referrer: "ycombinator"}},
			want: true,
		},
		{
			name: "referrer absent disqualifies",
			sess: session.Session{ID: "s1"},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{Referrer: "ycombinator"}},
			want: false,
		},
		{
			name: "referrer substring missing",
			sess: session.Session{ID: "s1", Referrer: "https://www.google.com"},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{Referrer: "ycombinator"}},
			want: false,
		},
		{
			name: "utm exact match",
			sess: session.Session{ID: "s1", UTM: map[string]string{"utm_source": "newsletter", "utm_medium": "email"}},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{UTM: map[string]string{"utm_source": "newsletter"}}},
			want: true,
		},
		{
			name: "utm key missing",
			sess: session.Session{ID: "s1", UTM: map[string]string{"utm_medium": "email"}},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{UTM: map[string]string{"utm_source": "newsletter"}}},
			want: false,
		},
		{
			name: "utm value mismatch",
			sess: session.Session{ID: "s1", UTM: map[string]string{"utm_source": "ads"}},
			exp:  Experiment{ID: "e1", Audience: &TargetAudience{UTM: map[string]string{"utm_source": "newsletter"}}},
			want: false,
		},
		{
			name: "target page substring match",
			sess: session.Session{ID: "s1"},
			path: "/pricing/enterprise",
			exp:  Experiment{ID: "e1", TargetPage: "/pricing"},
			want: true,
		},
		{
			name: "target page mismatch",
			sess: session.Session{ID: "s1"},
			path: "/about",
			exp:  Experiment{ID: "e1", TargetPage: "/pricing"},
			want: false,
		},
		{
			name: "all filters must pass",
			sess: session.Session{
				ID:       "s1",
				Device:   session.DeviceMobile,
				Referrer: "https://twitter.com/x",
				UTM:      map[string]string{"utm_source": "ads"},
			},
			path: "/pricing",
			exp: Experiment{
				ID:         "e1",
				TargetPage: "/pricing",
				Audience: &TargetAudience{
					Device:   session.DeviceMobile,
					Referrer: "twitter",
					UTM:      map[string]string{"utm_source": "newsletter"},
				},
			},
			want: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := eligible(c.sess, c.path, &c.exp); got != c.want {
				t.Errorf("eligible = %v, want %v", got, c.want)
			}
		})
	}
}
