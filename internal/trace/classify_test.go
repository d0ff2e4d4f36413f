package trace

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func concat(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

func TestClassify_Example(t *testing.T) {
	input := "Error\n   at Foo.Bar.Baz(\n   C:\\x\\y.cs:line 5"

	got := Classify(input)

	assert.Equal(t, []Token{
		{Text: "Error\n   ", Kind: KindText},
		{Text: "at Foo.Bar.Baz(", Kind: KindMethod},
		{Text: "\n   ", Kind: KindText},
		{Text: "C:\\x\\y.cs:line 5", Kind: KindFile},
	}, got)
}

// Text after the last reference used to be dropped.
func TestClassify_KeepsTrailingText(t *testing.T) {
	input := "   at App.Program.Main(String[] args) in C:\\src\\App\\Program.cs:line 12\n--- end of stack trace ---\n"

	got := Classify(input)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, KindText, last.Kind)
	assert.Equal(t, "\n--- end of stack trace ---\n", last.Text)
	assert.Equal(t, input, concat(got))
}

func TestClassify_EdgeCases(t *testing.T) {
	assert.Nil(t, Classify(""))
	assert.Equal(t, []Token{{Text: "nothing to see", Kind: KindText}}, Classify("nothing to see"))
}

func TestClassify_RussianLocale(t *testing.T) {
	input := "   в Foo.Bar.Baz() в D:\\work\\Proj\\Bar.cs:строка 44"

	got := Classify(input)

	assert.Equal(t, []Token{
		{Text: "   ", Kind: KindText},
		{Text: "в Foo.Bar.Baz(", Kind: KindMethod},
		{Text: ") в ", Kind: KindText},
		{Text: "D:\\work\\Proj\\Bar.cs:строка 44", Kind: KindFile},
	}, got)
}

func TestClassify_MethodNeedsFiveCharacterChain(t *testing.T) {
	got := Classify("at A.b(")
	assert.Equal(t, []Token{{Text: "at A.b(", Kind: KindText}}, got)
}

func TestClassify_CallWordInsideWordIsText(t *testing.T) {
	input := "Format Foo.Bar.Baz( then at Real.Call.Site("

	got := Classify(input)

	assert.Equal(t, []Token{
		{Text: "Format Foo.Bar.Baz( then ", Kind: KindText},
		{Text: "at Real.Call.Site(", Kind: KindMethod},
	}, got)
}

func TestClassify_UNCPath(t *testing.T) {
	got := Classify(`\\build\share\Proj\a.cs:line 7`)
	assert.Equal(t, []Token{{Text: `\\build\share\Proj\a.cs:line 7`, Kind: KindFile}}, got)
}

func TestClassify_RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"at Foo.Bar.Baz(",
		"System.NullReferenceException: Object reference not set\r\n   at Shop.Cart.Add(Item item) in C:\\repo\\Shop\\Cart.cs:line 88\r\n   at Shop.Api.Post() in C:\\repo\\Shop\\Api.cs:line 17\r\n",
		"   в Foo.Bar.Baz() в D:\\Proj\\Bar.cs:строка 44 хвост",
		"at at at Foo.Bar.Baz(at Foo.Bar.Qux(",
		"C:\\a.cs:line C:\\b.cs:line 1",
		"юникод ✓ at Ünïcode.Näme.Here( x",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, in, concat(Classify(in)))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	input := "at Foo.Bar.Baz() in C:\\x\\y.cs:line 5 and more"
	first := Classify(input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(input))
	}
}

func TestNewClassifier_CustomLocale(t *testing.T) {
	c, err := NewClassifier(Locale{Name: "de", LineWord: "Zeile", CallWord: "bei"})
	require.NoError(t, err)

	got := c.Classify("bei Foo.Bar.Baz() in C:\\x\\y.cs:Zeile 9")

	assert.Equal(t, []Token{
		{Text: "bei Foo.Bar.Baz(", Kind: KindMethod},
		{Text: ") in ", Kind: KindText},
		{Text: "C:\\x\\y.cs:Zeile 9", Kind: KindFile},
	}, got)
	assert.Equal(t, 9, c.ExtractLineNumber("x:Zeile 9"))
	assert.Equal(t, 0, c.ExtractLineNumber("x:line 9"))
}

func TestNewClassifier_Errors(t *testing.T) {
	_, err := NewClassifier()
	assert.ErrorIs(t, err, ErrNoLocales)

	_, err = NewClassifier(Locale{Name: "bad", LineWord: "line"})
	assert.Error(t, err)
}

func TestMethodName(t *testing.T) {
	cases := []struct {
		in, qualified, name string
	}{
		{"at Foo.Bar.Baz(", "Foo.Bar.Baz", "Baz"},
		{"в Shop.Cart.Add(", "Shop.Cart.Add", "Add"},
		{"at Single(", "Single", "Single"},
	}
	for _, tc := range cases {
		q, n := MethodName(tc.in)
		assert.Equal(t, tc.qualified, q, tc.in)
		assert.Equal(t, tc.name, n, tc.in)
	}
}

func TestTokenJSON(t *testing.T) {
	b, err := json.Marshal(Token{Text: "at A.B.C(", Kind: KindMethod})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"at A.B.C(","kind":"method"}`, string(b))

	var tok Token
	require.NoError(t, json.Unmarshal([]byte(`{"text":"x","kind":"file"}`), &tok))
	assert.Equal(t, KindFile, tok.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"text":"x","kind":"other"}`), &tok))
}
