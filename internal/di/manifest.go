package di

// Dependencies returns the ordered dependency manifest of tok. The result is
// a copy; a zero-argument recipe yields an empty slice.
func Dependencies(tok *Token) []*Token {
	if tok == nil {
		return nil
	}

	return append([]*Token{}, tok.deps...)
}

// DependencyNames renders the manifest of tok as token names.
func DependencyNames(tok *Token) []string {
	deps := Dependencies(tok)
	names := make([]string, len(deps))

	for i, dep := range deps {
		names[i] = dep.Name()
	}

	return names
}
