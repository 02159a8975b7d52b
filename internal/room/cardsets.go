package room

type CardSetType string

const (
	CardSetFibonacci CardSetType = "fibonacci"
	CardSetTShirt    CardSetType = "tshirt"
)

type CardSet struct {
	Type   CardSetType `json:"type"`
	Label  string      `json:"label"`
	Values []string    `json:"values"`
}

var CardSets = []CardSet{
	{
		Type:   CardSetFibonacci,
		Label:  "Fibonacci",
		Values: []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "?", "☕"},
	},
	{
		Type:   CardSetTShirt,
		Label:  "T-Shirt",
		Values: []string{"XS", "S", "M", "L", "XL", "XXL", "?", "☕"},
	},
}

// ParseCardSet maps client input to a known card set. Empty input means fibonacci.
func ParseCardSet(s string) (CardSetType, bool) {
	if s == "" {
		return CardSetFibonacci, true
	}
	for _, cs := range CardSets {
		if string(cs.Type) == s {
			return cs.Type, true
		}
	}
	return "", false
}
