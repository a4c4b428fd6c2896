package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// PreferenceEdit is one (field, value) pair recognised in free text.
type PreferenceEdit = models.PreferenceEdit

type vocabEntry struct {
	value   string
	phrases []string
}

var goalVocab = []vocabEntry{
	{"massa", normalizeAll("massa", "massa muscolare", "ipertrofia", "mettere massa", "aumentare massa", "muscoli")},
	{"dimagrire", normalizeAll("dimagrire", "dimagrimento", "perdere peso", "perdere chili", "bruciare grassi", "definizione")},
	{"resistenza", normalizeAll("resistenza", "fiato", "endurance", "cardio")},
	{"tonificare", normalizeAll("tonificare", "tonificazione", "tonico", "tonica", "rassodare")},
}

var levelVocab = []vocabEntry{
	{"principiante", normalizeAll("principiante", "beginner", "alle prime armi", "inizio ora", "neofita")},
	{"intermedio", normalizeAll("intermedio", "intermedia", "medio")},
	{"avanzato", normalizeAll("avanzato", "avanzata", "esperto", "esperta", "advanced")},
}

var locationVocab = []vocabEntry{
	{"casa", normalizeAll("casa", "a casa", "in casa", "home")},
	{"palestra", normalizeAll("palestra", "in palestra", "gym")},
	{"outdoor", normalizeAll("all'aperto", "aperto", "outdoor", "parco", "fuori")},
}

var equipmentVocab = []vocabEntry{
	{"corpo libero", normalizeAll("corpo libero", "senza attrezzi", "nessun attrezzo")},
	{"manubri", normalizeAll("manubri", "manubrio", "pesi")},
	{"bilanciere", normalizeAll("bilanciere")},
	{"kettlebell", normalizeAll("kettlebell")},
	{"elastici", normalizeAll("elastici", "bande elastiche", "elastico")},
	{"macchine", normalizeAll("macchine", "macchinari")},
	{"sbarra", normalizeAll("sbarra", "sbarra per trazioni")},
}

var numberWords = map[string]int{
	"un": 1, "uno": 1, "una": 1, "due": 2, "tre": 3, "quattro": 4, "cinque": 5, "sei": 6, "sette": 7,
}

var (
	daysPattern     = regexp.MustCompile(`\b(\d{1,2}|un|uno|una|due|tre|quattro|cinque|sei|sette)\s+(giorni|giorno|volte|volta|allenamenti|sedute)\b`)
	minutesPattern  = regexp.MustCompile(`\b(\d{1,3})\s*(minuti|minuto|min)\b`)
	hoursPattern    = regexp.MustCompile(`\b(\d|un|una|due)\s+(ora|ore)\b`)
	halfHourPattern = regexp.MustCompile(`\bmezz\s*ora\b`)
)

func matchVocab(norm string, vocab []vocabEntry) []string {
	var out []string
	for _, v := range vocab {
		if containsAny(norm, v.phrases) {
			out = append(out, v.value)
		}
	}
	return out
}

func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	n, ok := numberWords[s]
	return n, ok
}

// ParsePreferenceEdits extracts every recognisable preference change from text.
// Values are returned as strings and validated later by the preference store.
func ParsePreferenceEdits(text string) []PreferenceEdit {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}
	var edits []PreferenceEdit

	if goals := matchVocab(norm, goalVocab); len(goals) > 0 {
		edits = append(edits, PreferenceEdit{Field: models.FieldGoal, Value: goals[0]})
	}
	if levels := matchVocab(norm, levelVocab); len(levels) > 0 {
		edits = append(edits, PreferenceEdit{Field: models.FieldExperienceLevel, Value: levels[0]})
	}
	if m := daysPattern.FindStringSubmatch(norm); m != nil {
		if n, ok := parseCount(m[1]); ok {
			edits = append(edits, PreferenceEdit{Field: models.FieldDaysPerWeek, Value: strconv.Itoa(n)})
		}
	}
	if minutes, ok := parseDuration(norm); ok {
		edits = append(edits, PreferenceEdit{Field: models.FieldSessionDuration, Value: strconv.Itoa(minutes)})
	}
	if locs := matchVocab(norm, locationVocab); len(locs) > 0 {
		edits = append(edits, PreferenceEdit{Field: models.FieldTrainingLocation, Value: locs[0]})
	}
	if eq := matchVocab(norm, equipmentVocab); len(eq) > 0 {
		edits = append(edits, PreferenceEdit{Field: models.FieldEquipment, Value: strings.Join(eq, ", ")})
	}
	return edits
}

func parseDuration(norm string) (int, bool) {
	if m := minutesPattern.FindStringSubmatch(norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if halfHourPattern.MatchString(norm) {
		return 30, true
	}
	if m := hoursPattern.FindStringSubmatch(norm); m != nil {
		if n, ok := parseCount(m[1]); ok {
			return n * 60, true
		}
	}
	return 0, false
}
