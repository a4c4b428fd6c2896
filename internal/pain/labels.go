package pain

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/intent"
)

// PersistentThreshold is the age after which a tracked pain triggers the
// "see a professional" variant of the check message.
const PersistentThreshold = 14 * 24 * time.Hour

var zoneArticles = map[string]string{
	"spalla":    "la ",
	"schiena":   "la ",
	"ginocchio": "il ",
	"caviglia":  "la ",
	"polso":     "il ",
	"gomito":    "il ",
	"anca":      "l'",
	"collo":     "il ",
	"petto":     "il ",
	"addome":    "l'",
	"braccio":   "il ",
	"coscia":    "la ",
}

var happyEmojis = []string{"😄", "🎉", "💪", "🙌", "😊", "✨", "🥳"}

// Label returns the zone with its Italian article ("il ginocchio destro", "l'anca").
// Unknown zones are returned unchanged.
func Label(zone string) string {
	zone = strings.TrimSpace(zone)
	if article, ok := zoneArticles[intent.BaseZone(zone)]; ok {
		return article + zone
	}
	return zone
}

func joinLabels(zones []string) string {
	labels := make([]string, len(zones))
	for i, z := range zones {
		labels[i] = Label(z)
	}
	return strings.Join(labels, " e ")
}

// daysSince counts started days, so anything recorded earlier today is 1 day old.
func daysSince(then, now time.Time) int {
	d := now.Sub(then)
	if d < 0 {
		d = -d
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// FormatTimeAgo renders an approximate Italian "time ago" phrase.
func FormatTimeAgo(then, now time.Time) string {
	days := daysSince(then, now)
	switch {
	case days < 7:
		return "qualche giorno fa"
	case days < 14:
		return "una settimana fa"
	case days < 30:
		return fmt.Sprintf("%d settimane fa", days/7)
	case days < 60:
		return "circa un mese fa"
	}
	return fmt.Sprintf("%d mesi fa", days/30)
}

func persistentTimeAgo(then, now time.Time) string {
	days := daysSince(then, now)
	weeks := days / 7
	if weeks <= 3 {
		if weeks == 1 {
			return "circa 1 settimana fa"
		}
		return fmt.Sprintf("circa %d settimane fa", weeks)
	}
	months := days / 30
	if months == 1 {
		return "circa 1 mese fa"
	}
	return fmt.Sprintf("circa %d mesi fa", months)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
