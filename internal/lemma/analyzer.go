// Package lemma turns HTML or query text into counted lemmas. A morphology
// Analyzer supplies base forms and grammatical tags; the Pipeline handles
// markup stripping, token normalisation and function-word filtering.
package lemma

import (
	"errors"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// ErrMalformedToken is returned by an Analyzer for tokens containing
// characters outside its alphabet.
var ErrMalformedToken = errors.New("lemma: token outside analyzer alphabet")

// Analyzer is the morphology backend.
type Analyzer interface {
	// BaseForms returns the dictionary forms of a lower-cased token.
	BaseForms(token string) ([]string, error)
	// Tags returns the grammatical descriptions of a lower-cased token.
	Tags(token string) ([]string, error)
}

// Grammatical tags of Russian function words.
const (
	TagConjunction  = "СОЮЗ"
	TagInterjection = "МЕЖД"
	TagParticle     = "ЧАСТ"
	TagPreposition  = "ПРЕД"
	TagPronoun      = "МС"
	TagPronounAdj   = "МС-П"
	TagPronounNoun  = "МС-С"
	TagIntj         = "INTJ"
)

// FunctionalTags lists the tags whose words never become lemmas. A tag
// matches when it is a substring of any description, so "МС" also covers
// "МС-П".
var FunctionalTags = []string{
	TagConjunction, TagInterjection, TagParticle, TagPreposition,
	TagPronoun, TagPronounAdj, TagPronounNoun, TagIntj,
}

var closedClass = buildClosedClass(map[string][]string{
	TagConjunction: {
		"и", "а", "но", "или", "либо", "да", "зато", "однако", "что", "чтобы",
		"если", "когда", "хотя", "потому", "поэтому", "также", "тоже", "будто",
		"словно", "пока", "причем", "притом", "ибо", "едва", "как",
	},
	TagPreposition: {
		"в", "во", "на", "с", "со", "к", "ко", "по", "за", "из", "изо", "от",
		"ото", "до", "о", "об", "обо", "у", "для", "без", "безо", "под", "подо",
		"над", "надо", "при", "про", "через", "между", "перед", "передо",
		"около", "после", "вокруг", "среди", "сквозь", "ради", "вместо",
		"кроме", "возле", "против", "вдоль", "мимо", "сверх", "вне",
	},
	TagParticle: {
		"не", "ни", "же", "ли", "ль", "бы", "б", "вот", "вон", "даже", "уже",
		"только", "лишь", "ведь", "разве", "неужели", "пусть", "пускай", "ну",
		"ка", "де", "мол", "исключительно", "именно",
	},
	TagInterjection: {
		"ах", "ох", "эх", "ой", "ай", "ух", "ура", "увы", "эй", "ого", "ага",
		"алло", "браво", "фу", "тьфу",
	},
	TagPronoun: {
		"я", "ты", "он", "она", "оно", "мы", "вы", "они", "меня", "тебя", "его",
		"ее", "её", "нас", "вас", "их", "мне", "тебе", "ему", "ей", "нам", "вам",
		"им", "мной", "мною", "тобой", "тобою", "ним", "ней", "нею", "ними",
		"нем", "нём", "них", "нему", "себя", "себе", "собой", "собою",
	},
	TagPronounAdj: {
		"мой", "моя", "мое", "моё", "мои", "твой", "твоя", "твое", "твоё",
		"твои", "свой", "своя", "свое", "своё", "свои", "наш", "наша", "наше",
		"наши", "ваш", "ваша", "ваше", "ваши", "этот", "эта", "это", "эти",
		"тот", "та", "то", "те", "такой", "такая", "такое", "такие", "какой",
		"какая", "какое", "какие", "который", "которая", "которое", "которые",
		"весь", "вся", "всё", "все", "сам", "сама", "само", "сами", "каждый",
		"каждая", "каждое", "любой", "чей", "чья", "чье", "чьё", "чьи",
	},
	TagPronounNoun: {
		"кто", "никто", "ничто", "некто", "нечто", "кого", "кому",
		"кем", "ком", "чего", "чему", "чем", "чём", "ничего", "никого",
	},
})

func buildClosedClass(byTag map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for tag, words := range byTag {
		for _, w := range words {
			out[w] = append(out[w], w+"|"+tag)
		}
	}
	return out
}

// Russian is an Analyzer for Cyrillic tokens. Base forms come from the
// Snowball Russian stemmer; tags come from a closed-class word table, so
// content words carry no functional tag.
type Russian struct{}

func NewRussian() *Russian { return &Russian{} }

func (Russian) BaseForms(token string) ([]string, error) {
	if !isCyrillicWord(token) {
		return nil, ErrMalformedToken
	}
	stem, err := snowball.Stem(token, "russian", true)
	if err != nil {
		return nil, err
	}
	if stem == "" {
		stem = token
	}
	return []string{stem}, nil
}

func (Russian) Tags(token string) ([]string, error) {
	if !isCyrillicWord(token) {
		return nil, ErrMalformedToken
	}
	return closedClass[token], nil
}

func isCyrillicWord(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if !unicode.Is(unicode.Cyrillic, r) || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// IsFunctional reports whether any description contains a functional tag.
func IsFunctional(tags []string) bool {
	for _, info := range tags {
		for _, tag := range FunctionalTags {
			if strings.Contains(info, tag) {
				return true
			}
		}
	}
	return false
}
