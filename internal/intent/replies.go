package intent

// PainReply classifies an answer to "has the pain passed?".
type PainReply int

const (
	PainReplyUnknown PainReply = iota
	PainReplyGone
	PainReplyStill
)

func (r PainReply) String() string {
	switch r {
	case PainReplyGone:
		return "gone"
	case PainReplyStill:
		return "still"
	default:
		return "unknown"
	}
}

var (
	affirmativeWords = normalizeAll(
		"sì", "si", "ok", "okay", "certo", "certamente", "va bene", "esatto", "confermo", "perfetto",
		"d'accordo", "sicuro", "volentieri", "yes", "dai", "assolutamente", "ovvio", "giusto", "corretto",
	)
	negativeWords = normalizeAll(
		"no", "nope", "no grazie", "non voglio", "non ora", "meglio di no", "preferisco di no",
		"lascia perdere", "non serve", "non mi interessa", "per niente", "assolutamente no",
	)
	// Negations that wrap a "gone" word and must win over it.
	stillNegated = normalizeAll(
		"non è passato", "non è passata", "non sono passati", "non sono passate", "non passa",
		"non va meglio", "non sto meglio", "non è migliorato", "non è migliorata", "non è guarito",
	)
	// "Gone" phrases that contain a pain word and must win over it.
	goneNegated = normalizeAll(
		"non fa più male", "non mi fa più male", "non ho più dolore", "non ho più male",
		"non sento più dolore", "non sento più niente", "niente più dolore", "nessun dolore",
	)
	goneWords = normalizeAll(
		"passato", "passata", "passati", "passate", "è passato", "sto meglio", "va meglio", "meglio",
		"guarito", "guarita", "guariti", "tutto ok", "tutto bene", "risolto", "risolta", "sparito",
		"sparita", "bene", "benissimo", "sì", "si", "ok", "okay", "yes", "certo",
	)
	stillWords = normalizeAll(
		"fa ancora male", "ancora male", "c'è ancora", "ce ancora", "ancora", "persiste", "peggio",
		"sempre", "mi fa male", "fa male", "dolore", "no", "purtroppo",
	)
	allWords = normalizeAll(
		"tutti", "tutte", "tutto", "entrambi", "entrambe", "tutti e due", "tutte e due", "ogni dolore",
		"nessun dolore", "ambedue",
	)
	planWords = normalizeAll(
		"piano", "piani", "allenamento", "allenamenti", "workout", "esercizi", "programma", "scheda",
		"routine", "creami", "generami", "genera", "crea un piano", "fammi un piano", "mi serve un piano",
		"voglio un piano", "fammi una scheda", "allenarmi",
	)
	modifyWords = normalizeAll(
		"modifica", "modificare", "modifico", "cambia", "cambiare", "cambio", "cambiamo", "aggiorna",
		"aggiornare", "correggi", "correggere", "non è corretto", "sbagliato", "sbagliata", "voglio cambiare",
	)
	proceedWords = normalizeAll(
		"procedi", "procediamo", "continua", "continuiamo", "va bene così", "basta così", "ho finito",
		"fatto", "genera", "crea il piano", "vai", "andiamo", "ok procedi", "confermo",
	)
	cancelWords = normalizeAll(
		"annulla", "annullare", "lascia stare", "stop", "ricominciamo", "ricomincia", "reset",
		"cambiamo argomento",
	)
)

// IsAffirmative reports a yes-like reply.
func IsAffirmative(text string) bool {
	norm := Normalize(text)
	if containsAny(norm, negativeWords) {
		return false
	}
	return containsAny(norm, affirmativeWords)
}

// IsNegative reports a no-like reply.
func IsNegative(text string) bool {
	return containsAny(Normalize(text), negativeWords)
}

// IsConfirm reports a confirmation. Declines take precedence.
func IsConfirm(text string) bool {
	norm := Normalize(text)
	if containsAny(norm, negativeWords) {
		return false
	}
	return containsAny(norm, affirmativeWords) || containsAny(norm, proceedWords)
}

// IsDecline reports a refusal.
func IsDecline(text string) bool {
	return IsNegative(text)
}

// ClassifyPainReply decides whether a reply says the pain is gone or still present.
func ClassifyPainReply(text string) PainReply {
	norm := Normalize(text)
	switch {
	case norm == "":
		return PainReplyUnknown
	case containsAny(norm, stillNegated):
		return PainReplyStill
	case containsAny(norm, goneNegated):
		return PainReplyGone
	case containsAny(norm, stillWords) && !containsAny(norm, goneWords):
		return PainReplyStill
	case containsAny(norm, goneWords) && !containsAny(norm, stillWords):
		return PainReplyGone
	case containsAny(norm, stillWords):
		// "meglio ma fa ancora male"
		return PainReplyStill
	}
	return PainReplyUnknown
}

// MentionsAll reports whether a reply refers to every tracked pain.
func MentionsAll(text string) bool {
	return containsAny(Normalize(text), allWords)
}

// IsPlanRequest reports whether the message asks for a workout plan.
func IsPlanRequest(text string) bool {
	return containsAny(Normalize(text), planWords)
}

// IsModifyRequest reports whether the user wants to change something.
func IsModifyRequest(text string) bool {
	return containsAny(Normalize(text), modifyWords)
}

// IsProceed reports whether the user wants to move on.
func IsProceed(text string) bool {
	norm := Normalize(text)
	if containsAny(norm, negativeWords) {
		return false
	}
	return containsAny(norm, proceedWords)
}

// IsCancel reports an explicit request to abandon the current sub-flow.
func IsCancel(text string) bool {
	return containsAny(Normalize(text), cancelWords)
}
