package models

// ParsedItem is one unit of parsed input. A phrase has no Key, an option has
// a Key, and a flag carries a single character as its Value.
type ParsedItem struct {
	Value string `json:"value"`
	Key   string `json:"key,omitempty"`
	Raw   string `json:"raw"`
}

// ParserOutput holds everything the parser recognised. All keeps document
// order; Phrases, Flags and Options keep their relative order.
type ParserOutput struct {
	All     []ParsedItem `json:"all"`
	Phrases []ParsedItem `json:"phrases"`
	Flags   []ParsedItem `json:"flags"`
	Options []ParsedItem `json:"options"`
}

// AddPhrase records a positional phrase.
func (o *ParserOutput) AddPhrase(item ParsedItem) {
	o.All = append(o.All, item)
	o.Phrases = append(o.Phrases, item)
}

// AddFlag records a single-character flag.
func (o *ParserOutput) AddFlag(item ParsedItem) {
	o.All = append(o.All, item)
	o.Flags = append(o.Flags, item)
}

// AddOption records a key/value option.
func (o *ParserOutput) AddOption(item ParsedItem) {
	o.All = append(o.All, item)
	o.Options = append(o.Options, item)
}

// PhraseValues returns the values of all phrases in order.
func (o ParserOutput) PhraseValues() []string {
	values := make([]string, 0, len(o.Phrases))
	for _, p := range o.Phrases {
		values = append(values, p.Value)
	}
	return values
}
