package experiment

import (
	"strings"

	"github.com/nidhogg/switchyard/internal/session"
)

// eligible reports whether the session may enter the experiment on the given
// navigation path. All configured filters must pass; an absent filter
// imposes no constraint. Pure function of its inputs.
func eligible(sess session.Session, path string, exp *Experiment) bool {
	if exp.TargetPage != "" && !strings.Contains(path, exp.TargetPage) {
		return false
	}
	aud := exp.Audience
	if aud == nil {
		return true
	}
	if aud.Device != "" && aud.Device != sess.Device {
		return false
	}
	if aud.Referrer != "" {
		if sess.Referrer == "" || !strings.Contains(sess.Referrer, aud.Referrer) {
			return false
		}
	}
	for k, want := range aud.UTM {
		got, ok := sess.UTM[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
