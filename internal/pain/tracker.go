// Package pain tracks the pains and injuries a user has declared and writes the
// Italian messages PrimeBot uses when asking about them.
package pain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/store"
)

// Tracker manages tracked pains over a store.PainRepo.
type Tracker struct {
	repo  store.PainRepo
	now   func() time.Time
	emoji func() string
}

// Opts holds configuration for a Tracker.
type Opts struct {
	Now   func() time.Time
	Emoji func() string
}

// Option configures a Tracker.
type Option func(*Opts)

// WithClock overrides the time source used for pain ages.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithEmoji overrides the happy emoji picker.
func WithEmoji(pick func() string) Option {
	return func(o *Opts) {
		o.Emoji = pick
	}
}

// NewTracker creates a Tracker backed by repo.
func NewTracker(repo store.PainRepo, opts ...Option) *Tracker {
	cfg := Opts{
		Now:   time.Now,
		Emoji: func() string { return happyEmojis[rand.IntN(len(happyEmojis))] },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tracker{repo: repo, now: cfg.Now, emoji: cfg.Emoji}
}

// List returns the user's tracked pains, oldest first.
func (t *Tracker) List(ctx context.Context, userID string) ([]models.PainRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pains, err := t.repo.ListPains(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pains: %w", err)
	}
	sort.SliceStable(pains, func(i, j int) bool { return pains[i].AddedAt.Before(pains[j].AddedAt) })
	return pains, nil
}

// Declare records a pain. Declaring an already tracked zone succeeds without change.
func (t *Tracker) Declare(ctx context.Context, userID, zone, note string, source models.PainSource) (models.DeclareResult, error) {
	if err := ctx.Err(); err != nil {
		return models.DeclareResult{}, err
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return models.DeclareResult{Success: false, Error: "zona non specificata"}, nil
	}
	added, err := t.repo.AddPain(userID, models.PainRecord{
		Zone:        zone,
		Description: strings.TrimSpace(note),
		Source:      source,
		AddedAt:     t.now(),
	})
	if err != nil {
		slog.Error("Tracker.Declare: store failed", "userID", userID, "zone", zone, "error", err)
		return models.DeclareResult{Success: false, Error: err.Error()}, nil
	}
	if added {
		slog.Info("Tracker.Declare: pain tracked", "userID", userID, "zone", zone, "source", source)
	} else {
		slog.Debug("Tracker.Declare: zone already tracked", "userID", userID, "zone", zone)
	}
	return models.DeclareResult{Success: true}, nil
}

// Resolve removes the pain matching zone and returns the confirmation text.
// zone may be a tracked zone or just its base ("ginocchio" matches "ginocchio destro").
func (t *Tracker) Resolve(ctx context.Context, userID, zone string) (string, error) {
	pains, err := t.List(ctx, userID)
	if err != nil {
		return "", err
	}
	target := matchZone(pains, zone)
	if target == "" {
		slog.Warn("Tracker.Resolve: zone not tracked", "userID", userID, "zone", zone)
		target = strings.TrimSpace(zone)
	} else if _, err := t.repo.RemovePain(userID, target); err != nil {
		return "", fmt.Errorf("failed to resolve pain %s: %w", target, err)
	}

	var remaining []string
	for _, p := range pains {
		if p.Zone != target {
			remaining = append(remaining, p.Zone)
		}
	}
	slog.Info("Tracker.Resolve: pain resolved", "userID", userID, "zone", target, "remaining", len(remaining))

	emoji := t.emoji()
	if len(remaining) == 0 {
		return fmt.Sprintf("%s **Fantastico!** Sono contentissimo che stai meglio! Ora posso crearti un piano di allenamento completo senza limitazioni! 💪\n\nChe tipo di allenamento vorresti fare?", emoji), nil
	}
	return fmt.Sprintf("%s **Ottima notizia per %s!** Sono contento che stia meglio!\n\nPer %s, come va? È passato anche quello?", emoji, Label(target), joinLabels(remaining)), nil
}

// ResolveAll removes every tracked pain. It is a no-op on an empty list.
func (t *Tracker) ResolveAll(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := t.repo.RemoveAllPains(userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve all pains: %w", err)
	}
	slog.Info("Tracker.ResolveAll: pains cleared", "userID", userID, "count", n)
	e := t.emoji()
	return fmt.Sprintf("%s%s%s **Che bella notizia!** Sono super felice che stai bene! Ora posso crearti qualsiasi tipo di allenamento!\n\nCosa ti va di fare oggi? 💪", e, e, e), nil
}

// CheckMessage asks whether the oldest tracked pain is gone. Returns "" for no pains.
func (t *Tracker) CheckMessage(pains []models.PainRecord) string {
	if len(pains) == 0 {
		return ""
	}
	oldest := pains[0]
	for _, p := range pains[1:] {
		if p.AddedAt.Before(oldest.AddedAt) {
			oldest = p
		}
	}
	now := t.now()
	label := Label(oldest.Zone)
	if now.Sub(oldest.AddedAt) >= PersistentThreshold {
		return fmt.Sprintf("⚠️ **Nota importante**: Mi avevi detto che ti faceva male %s %s, il dolore è passato o c'è ancora?\n\nSe il dolore persiste, ti consiglio di consultare un medico, un fisioterapista o un professionista.",
			label, persistentTimeAgo(oldest.AddedAt, now))
	}
	return fmt.Sprintf("💬 %s mi avevi detto che ti faceva male %s. È passato o c'è ancora?", capitalize(FormatTimeAgo(oldest.AddedAt, now)), label)
}

// StillPresentMessage acknowledges a pain that has not gone away.
func (t *Tracker) StillPresentMessage(zone string) string {
	return fmt.Sprintf("Capisco, nessun problema! 💪 Ti creerò un piano di allenamento sicuro che evita completamente %s. Tutti gli esercizi saranno selezionati per non stressare quella zona.\n\nHai altri dolori o fastidi che devo considerare?", Label(zone))
}

// WhichPainMessage asks the user to name the zone that improved.
func (t *Tracker) WhichPainMessage(pains []models.PainRecord) string {
	zones := make([]string, len(pains))
	for i, p := range pains {
		zones[i] = p.Zone
	}
	return fmt.Sprintf("Che bello sentirlo! 😊 Quale dolore è passato: %s? Se stanno tutti meglio scrivimi \"tutti\".", joinLabels(zones))
}

func matchZone(pains []models.PainRecord, zone string) string {
	zone = strings.TrimSpace(strings.ToLower(zone))
	for _, p := range pains {
		if strings.EqualFold(p.Zone, zone) {
			return p.Zone
		}
	}
	base := intent.BaseZone(zone)
	for _, p := range pains {
		if intent.BaseZone(p.Zone) == base {
			return p.Zone
		}
	}
	return ""
}
