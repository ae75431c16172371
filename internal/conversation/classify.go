package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Trigger is the recognized intent of an inbound text message.
type Trigger int

const (
	Unknown Trigger = iota
	Greeting
	ChooseA
	ChooseB
	Menu
	Reset
	OptOut
	OptIn
)

var (
	optOutPhrases = []string{
		"parar", "sair", "cancelar", "stop", "unsubscribe",
		"nao quero receber", "nao receber", "descadastrar", "remover",
	}
	optInPhrases = []string{"quero receber", "voltar a receber", "assinar", "reativar"}

	resetWords = []string{"reset", "reiniciar", "recomecar", "inicio"}
	menuWords  = []string{"menu", "oi", "ola", "iniciar", "comecar", "inicio"}

	chooseAWords = []string{"a", "1", "produto a", "oferta a"}
	chooseBWords = []string{"b", "2", "produto b", "oferta b"}

	greetingStartRe = regexp.MustCompile(`^(comprar|lista|fornecedor(es)?|preco|valor)\b`)
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases, trims and strips diacritics so "opções" and
// "OPCOES" classify the same way.
func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(folded), " ")
}

// Classify maps free text to a trigger. Opt-out wins over everything else so a
// "quero parar" buried in a longer sentence is never missed.
func Classify(text string) Trigger {
	t := normalize(text)
	if t == "" {
		return Unknown
	}

	for _, p := range optOutPhrases {
		if strings.Contains(t, p) {
			return OptOut
		}
	}
	for _, p := range optInPhrases {
		if strings.Contains(t, p) {
			return OptIn
		}
	}
	for _, w := range resetWords {
		if t == w {
			return Reset
		}
	}
	for _, w := range menuWords {
		if t == w {
			return Menu
		}
	}
	for _, w := range chooseAWords {
		if t == w {
			return ChooseA
		}
	}
	for _, w := range chooseBWords {
		if t == w {
			return ChooseB
		}
	}
	if greetingStartRe.MatchString(t) {
		return Greeting
	}
	return Unknown
}
