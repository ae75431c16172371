package conversation

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Trigger
	}{
		{"oi", Menu},
		{"Olá", Menu},
		{"MENU", Menu},
		{"começar", Menu},
		{"a", ChooseA},
		{"1", ChooseA},
		{"Produto A", ChooseA},
		{"oferta b", ChooseB},
		{"2", ChooseB},
		{"reset", Reset},
		{"Recomeçar", Reset},
		{"comprar a lista", Greeting},
		{"fornecedores de atacado", Greeting},
		{"preço?", Greeting},
		{"quanto custa", Unknown},
		{"", Unknown},
		{"parar", OptOut},
		{"quero PARAR de receber", OptOut},
		{"não quero receber mais nada", OptOut},
		{"descadastrar", OptOut},
		{"quero receber de novo", OptIn},
		{"reativar", OptIn},
	}

	for _, tc := range cases {
		if got := Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestClassifyAccentInsensitive(t *testing.T) {
	if Classify("OPÇÃO indesejada, CANCELAR") != OptOut {
		t.Error("opt-out keyword with accents and casing not recognized")
	}
	if Classify("olá") != Menu {
		t.Error("accented greeting not recognized")
	}
}

func TestClassifyOptOutWinsOverChoice(t *testing.T) {
	// "parar" buried in a sentence that also starts with a greeting prefix.
	if got := Classify("comprar nada, quero parar"); got != OptOut {
		t.Errorf("expected OptOut, got %v", got)
	}
}
