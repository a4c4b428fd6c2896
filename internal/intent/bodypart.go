package intent

import (
	"sort"
	"strings"
)

// Zones lists the canonical body zones known to the pain tracker.
var Zones = []string{
	"spalla", "schiena", "ginocchio", "caviglia", "polso", "gomito",
	"anca", "collo", "petto", "addome", "braccio", "coscia",
}

var zoneSynonyms = map[string][]string{
	"spalla":    {"spalla", "spalle", "shoulder", "deltoide", "deltoidi", "cuffia dei rotatori", "cuffia rotatori", "sovraspinato"},
	"schiena":   {"schiena", "back", "dorsale", "dorsali", "lombare", "lombari", "lombalgia", "rachide", "colonna", "vertebrale", "ernia", "disco", "sciatalgia", "sciatica", "mal di schiena"},
	"ginocchio": {"ginocchio", "ginocchia", "knee", "rotula", "menisco", "legamenti", "crociato", "collaterale"},
	"caviglia":  {"caviglia", "caviglie", "ankle", "piede", "piedi", "tallone", "talloni", "fascite", "plantare", "distorsione piede"},
	"polso":     {"polso", "polsi", "wrist", "mano", "mani", "dita", "dito", "tunnel carpale", "carpale", "tendinite polso"},
	"gomito":    {"gomito", "gomiti", "elbow", "epicondilite", "gomito del tennista", "gomito del golfista", "epitrocleite"},
	"anca":      {"anca", "hip", "bacino", "inguine", "pubalgia", "flessori anca", "coxalgia", "femore"},
	"collo":     {"collo", "cervicale", "cervicali", "neck", "torcicollo", "trapezio", "cervicalgia"},
	"petto":     {"petto", "pettorale", "pettorali", "chest", "sterno", "costole", "costato", "costola"},
	"addome":    {"addome", "addominale", "addominali", "ernia inguinale", "ernia ombelicale", "pancia", "core injury"},
	"braccio":   {"braccio", "braccia", "arm", "bicipite", "bicipiti", "tricipite", "tricipiti", "avambraccio"},
	"coscia":    {"coscia", "cosce", "quadricipite", "quadricipiti", "femorale", "femorali", "hamstring", "strappo coscia", "stiramento"},
}

type synonym struct {
	phrase string
	zone   string
}

// synonymIndex is ordered longest phrase first so "ernia inguinale" beats "ernia".
var synonymIndex = buildSynonymIndex()

func buildSynonymIndex() []synonym {
	var idx []synonym
	for _, zone := range Zones {
		for _, s := range zoneSynonyms[zone] {
			idx = append(idx, synonym{phrase: Normalize(s), zone: zone})
		}
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return len(idx[i].phrase) > len(idx[j].phrase)
	})
	return idx
}

// DetectBodyPart returns the canonical zone mentioned in text, if any.
func DetectBodyPart(text string) (string, bool) {
	norm := Normalize(text)
	for _, s := range synonymIndex {
		if containsPhrase(norm, s.phrase) {
			return s.zone, true
		}
	}
	return "", false
}

// DetectBodyParts returns every distinct zone mentioned in text, in canonical order.
func DetectBodyParts(text string) []string {
	norm := Normalize(text)
	seen := make(map[string]bool)
	for _, s := range synonymIndex {
		if !seen[s.zone] && containsPhrase(norm, s.phrase) {
			seen[s.zone] = true
		}
	}
	var out []string
	for _, z := range Zones {
		if seen[z] {
			out = append(out, z)
		}
	}
	return out
}

// BaseZone strips a laterality qualifier from a tracked zone ("ginocchio destro" -> "ginocchio").
func BaseZone(zone string) string {
	if z, ok := DetectBodyPart(zone); ok {
		return z
	}
	return strings.TrimSpace(zone)
}

var bilateralZones = map[string]bool{
	"ginocchio": true, "spalla": true, "caviglia": true, "polso": true,
	"gomito": true, "anca": true, "braccio": true, "coscia": true,
}

var feminineZones = map[string]bool{
	"spalla": true, "schiena": true, "caviglia": true, "anca": true, "coscia": true,
}

// IsBilateral reports whether zone exists on both sides of the body.
func IsBilateral(zone string) bool {
	return bilateralZones[zone]
}

// Laterality is the side of a bilateral zone.
type Laterality int

const (
	LateralityUnknown Laterality = iota
	LateralityLeft
	LateralityRight
	LateralityBoth
)

var (
	rightWords = normalizeAll("destro", "destra", "destri", "destre", "dx", "right", "a destra", "lato destro")
	leftWords  = normalizeAll("sinistro", "sinistra", "sinistri", "sinistre", "sx", "left", "a sinistra", "lato sinistro")
	bothWords  = normalizeAll("entrambi", "entrambe", "tutti e due", "tutte e due", "tutti e 2", "tutte e 2", "ambedue", "both", "entrambi i lati", "da tutte e due le parti")
)

// ParseLaterality extracts left/right/both from text.
func ParseLaterality(text string) (Laterality, bool) {
	norm := Normalize(text)
	if containsAny(norm, bothWords) {
		return LateralityBoth, true
	}
	right := containsAny(norm, rightWords)
	left := containsAny(norm, leftWords)
	switch {
	case right && left:
		return LateralityBoth, true
	case right:
		return LateralityRight, true
	case left:
		return LateralityLeft, true
	}
	return LateralityUnknown, false
}

// QualifyZone appends the laterality to zone with Italian gender agreement.
func QualifyZone(zone string, l Laterality) string {
	feminine := feminineZones[zone]
	switch l {
	case LateralityRight:
		if feminine {
			return zone + " destra"
		}
		return zone + " destro"
	case LateralityLeft:
		if feminine {
			return zone + " sinistra"
		}
		return zone + " sinistro"
	case LateralityBoth:
		return zone + " (entrambi i lati)"
	}
	return zone
}

// Mention tells whether a body part is named as a pain or as a training target.
type Mention int

const (
	MentionTarget Mention = iota
	MentionPain
)

var (
	painWords = normalizeAll(
		"fa male", "mi fa male", "male", "dolore", "dolori", "dolorante", "dolorosa", "doloroso",
		"infortunio", "infortunato", "infortunata", "ferito", "ferita", "lesione", "strappo",
		"distorsione", "tendinite", "contrattura", "infiammato", "infiammata", "infiammazione",
		"operato", "operata", "fastidio", "acciacco", "problema al", "problemi al", "problema alla",
		"problemi alla", "problema cardiaco", "vertigini", "svenimento",
	)
	targetWords = normalizeAll(
		"rinforzare", "rinforzarmi", "rinforzo", "rafforzare", "allenare", "tonificare", "lavorare su",
		"focus", "concentrarmi", "concentrati", "definire", "sviluppare", "potenziare", "migliorare",
		"aumentare", "crescere", "scolpire", "ingrossare",
	)
)

// MentionsPain reports whether text contains any pain keyword.
func MentionsPain(text string) bool {
	return containsAny(Normalize(text), painWords)
}

// ClassifyMention applies the pain/target tie-break: pain only -> pain, target only ->
// target, both -> pain, neither -> target.
func ClassifyMention(text string) Mention {
	norm := Normalize(text)
	pain := containsAny(norm, painWords)
	target := containsAny(norm, targetWords)
	switch {
	case pain && target:
		return MentionPain
	case pain:
		return MentionPain
	case target:
		return MentionTarget
	default:
		return MentionTarget
	}
}
